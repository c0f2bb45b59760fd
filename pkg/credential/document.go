// Package credential models Open Badges credential documents and validates
// their structure against the version-specific field rules.
//
// Documents are kept as the generic JSON object they arrived as: a detached
// signature covers every field, including ones this package does not know
// about, so a lossy struct round-trip would break verification. Typed
// accessors wrap the underlying map instead.
package credential

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Version discriminates the two supported credential shapes.
type Version string

const (
	// V2 is the flat "Assertion" shape.
	V2 Version = "v2"

	// V3 is the OpenBadgeCredential shape with a type array.
	V3 Version = "v3"
)

// TypeOpenBadgeCredential is the type-array entry that marks a v3 document.
const TypeOpenBadgeCredential = "OpenBadgeCredential"

// TypeAssertion is the literal type string of a v2 document.
const TypeAssertion = "Assertion"

// Document is a credential as received, a generic JSON object.
type Document map[string]any

// Parse decodes a JSON credential document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse credential JSON: %w", err)
	}
	return doc, nil
}

// DetectVersion returns V3 when the type field is an array containing
// "OpenBadgeCredential", V2 otherwise.
func (d Document) DetectVersion() Version {
	if types, ok := d["type"].([]any); ok {
		for _, t := range types {
			if s, ok := t.(string); ok && s == TypeOpenBadgeCredential {
				return V3
			}
		}
	}
	return V2
}

// ID returns the credential's id field, if it is a string.
func (d Document) ID() string {
	s, _ := d["id"].(string)
	return s
}

// IssuerID returns issuer.id for v3 documents.
func (d Document) IssuerID() string {
	issuer, ok := d["issuer"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := issuer["id"].(string)
	return s
}

// BadgeURL returns the badge field for v2 documents.
func (d Document) BadgeURL() string {
	s, _ := d["badge"].(string)
	return s
}

// AchievementID returns credentialSubject.achievement.id for v3 documents.
func (d Document) AchievementID() string {
	subject, ok := d["credentialSubject"].(map[string]any)
	if !ok {
		return ""
	}
	achievement, ok := subject["achievement"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := achievement["id"].(string)
	return s
}

// Proof returns the proof field and whether one is present.
func (d Document) Proof() (any, bool) {
	p, ok := d["proof"]
	return p, ok && p != nil
}

// HasProof reports whether the document carries a proof.
func (d Document) HasProof() bool {
	_, ok := d.Proof()
	return ok
}

// IssuerURL returns the URL identifying the issuer for either version:
// issuer.id for v3, the badge URL for v2. Empty when neither is present.
func (d Document) IssuerURL() string {
	if d.DetectVersion() == V3 {
		return d.IssuerID()
	}
	return d.BadgeURL()
}

// IssuerDomain returns the hostname of IssuerURL, or empty when the URL is
// absent or unparsable.
func (d Document) IssuerDomain() string {
	raw := d.IssuerURL()
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}
