package credential

import (
	"fmt"
	"net/url"
)

// Issue codes reported by the structure validator.
const (
	CodeMissingField  = "MISSING_FIELD"
	CodeInvalidField  = "INVALID_FIELD"
	CodeInvalidURL    = "INVALID_URL"
	CodeMissingOption = "MISSING_OPTIONAL_FIELD"
)

// Issue describes one problem found during structure validation.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Result is the outcome of structure validation. Valid is true iff Errors is
// empty; Warnings never affect validity.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Version  Version `json:"version"`
}

func (r *Result) addError(code, message, field string) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: message, Field: field})
}

func (r *Result) addWarning(code, message, field string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: message, Field: field})
}

// Validate checks a credential document against the field rules of its
// detected version.
func Validate(doc Document) Result {
	result := Result{Version: doc.DetectVersion()}

	switch result.Version {
	case V3:
		validateV3(doc, &result)
	default:
		validateV2(doc, &result)
	}

	// Both versions: id, when present, must be a syntactically valid URL.
	if id := doc.ID(); id != "" {
		if !validURL(id) {
			result.addError(CodeInvalidURL, fmt.Sprintf("id %q is not a valid URL", id), "id")
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func validateV3(doc Document, result *Result) {
	ctx, ok := doc["@context"].([]any)
	if !ok || len(ctx) == 0 {
		result.addError(CodeInvalidField, "@context must be a non-empty array", "@context")
	}

	if doc.DetectVersion() != V3 {
		result.addError(CodeInvalidField, `type must be an array containing "OpenBadgeCredential"`, "type")
	}

	if doc.IssuerID() == "" {
		result.addError(CodeMissingField, "issuer.id is required", "issuer.id")
	}

	if doc.AchievementID() == "" {
		result.addError(CodeMissingField, "credentialSubject.achievement.id is required", "credentialSubject.achievement.id")
	}

	if _, ok := doc["validFrom"]; !ok {
		result.addWarning(CodeMissingOption, "validFrom is missing", "validFrom")
	}
}

func validateV2(doc Document, result *Result) {
	if _, ok := doc["@context"]; !ok {
		result.addError(CodeMissingField, "@context is required", "@context")
	}

	if typ, _ := doc["type"].(string); typ != TypeAssertion {
		result.addError(CodeInvalidField, `type must equal "Assertion"`, "type")
	}

	if _, ok := doc["badge"]; !ok {
		result.addError(CodeMissingField, "badge is required", "badge")
	}

	if _, ok := doc["recipient"]; !ok {
		result.addError(CodeMissingField, "recipient is required", "recipient")
	}

	if _, ok := doc["issuedOn"]; !ok {
		result.addWarning(CodeMissingOption, "issuedOn is missing", "issuedOn")
	}
}

// validURL mirrors what an absolute-URL constructor accepts: parsing must
// succeed and a scheme must be present (urn: IDs remain valid).
func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != ""
}
