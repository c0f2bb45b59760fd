// Package issuer resolves and validates issuer identity documents published
// at the well-known path, binds their id to the issuing domain, and records
// the outcome in the trust store.
package issuer

import "encoding/json"

// WellKnownPath is the conventional path every issuer publishes its identity
// document at.
const WellKnownPath = "/.well-known/openbadges-issuer.json"

// Document types accepted in a well-known issuer document.
const (
	TypeIssuer  = "Issuer"
	TypeProfile = "Profile"
)

// Document is a parsed well-known issuer identity document.
//
// PublicKey may be a bare PEM string or an object carrying publicKeyPem or
// publicKeyMultibase; PublicKeys is a list of the same shapes. Both are kept
// raw here and decoded by the key resolver.
type Document struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	URL         string          `json:"url,omitempty"`
	Email       string          `json:"email,omitempty"`
	Description string          `json:"description,omitempty"`
	PublicKey   json.RawMessage `json:"publicKey,omitempty"`
	PublicKeys  json.RawMessage `json:"publicKeys,omitempty"`
}

// MissingFields returns the required fields absent from the document.
func (d *Document) MissingFields() []string {
	var missing []string
	if d.ID == "" {
		missing = append(missing, "id")
	}
	if d.Type == "" {
		missing = append(missing, "type")
	}
	if d.Name == "" {
		missing = append(missing, "name")
	}
	return missing
}

// ValidType reports whether the document type is one of the accepted values.
func (d *Document) ValidType() bool {
	return d.Type == TypeIssuer || d.Type == TypeProfile
}

// WellKnownURL builds the well-known document URL for a domain.
func WellKnownURL(domain string) string {
	return "https://" + domain + WellKnownPath
}
