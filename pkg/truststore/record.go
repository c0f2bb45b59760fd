// Package truststore provides the durable domain-to-record mapping used by
// issuer verification. Records are keyed by lowercase hostname and survive
// re-verification: a failed attempt degrades a record in place rather than
// deleting it, preserving verified-era metadata for audit.
package truststore

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no record exists for a domain.
var ErrNotFound = errors.New("trust record not found")

// Status indicates the outcome of the most recent verification attempt.
type Status string

const (
	// StatusVerified means the domain's identity binding held at the time
	// recorded in LastVerified.
	StatusVerified Status = "verified"

	// StatusFailed means the most recent verification attempt failed.
	StatusFailed Status = "failed"
)

// Record is the persistent verification state for one issuer domain.
type Record struct {
	// Domain is the lowercase hostname the record is keyed by.
	Domain string `json:"domain"`

	// Status is "verified" or "failed".
	Status Status `json:"status"`

	// DisplayName is the issuer's declared name.
	DisplayName string `json:"displayName,omitempty"`

	// Type is the issuer document type ("Issuer" or "Profile").
	Type string `json:"type,omitempty"`

	// URL is the issuer's declared homepage.
	URL string `json:"url,omitempty"`

	// Email is the issuer's declared contact address.
	Email string `json:"email,omitempty"`

	// PublicKeys holds PEM-encoded keys published by the issuer.
	PublicKeys []string `json:"publicKeys,omitempty"`

	// WellKnownURL is the document URL the record was verified against.
	WellKnownURL string `json:"wellKnownUrl,omitempty"`

	// VerificationMethod records how the identity was established
	// (currently always "well-known").
	VerificationMethod string `json:"verificationMethod,omitempty"`

	// Document is the raw issuer document as fetched, kept for audit.
	Document json.RawMessage `json:"document,omitempty"`

	// LastVerified is the time of the most recent successful verification.
	LastVerified time.Time `json:"lastVerified,omitempty"`

	// LastVerificationAttempt is the time of the most recent attempt,
	// successful or not.
	LastVerificationAttempt time.Time `json:"lastVerificationAttempt,omitempty"`

	// LastError is the failure message from the most recent failed attempt.
	LastError string `json:"lastError,omitempty"`
}

// Verified reports whether the record's most recent verification succeeded.
func (r *Record) Verified() bool {
	return r != nil && r.Status == StatusVerified
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.PublicKeys != nil {
		out.PublicKeys = append([]string(nil), r.PublicKeys...)
	}
	if r.Document != nil {
		out.Document = append(json.RawMessage(nil), r.Document...)
	}
	return &out
}

// NormalizeDomain lowercases a hostname and strips surrounding whitespace
// and any port suffix so that records key consistently.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.LastIndex(d, ":"); i > 0 && !strings.Contains(d, "]") {
		// host:port, but leave IPv6 literals alone
		if _, rest := d[:i], d[i+1:]; rest != "" && isDigits(rest) {
			d = d[:i]
		}
	}
	return d
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Store is the collaborator interface consumed by the verification engine.
// Implementations must serialize concurrent updates to the same domain's
// record; updates to different domains must not interfere.
type Store interface {
	// Get returns the record for a domain, or ErrNotFound.
	Get(domain string) (*Record, error)

	// Put stores a record for a domain, overwriting any prior record.
	Put(domain string, rec *Record) error

	// Update applies a read-modify-write to a domain's record under a
	// per-domain lock. fn receives the existing record (nil if none) and
	// returns the record to store, or nil to store nothing.
	Update(domain string, fn func(prev *Record) (*Record, error)) error

	// List returns all records.
	List() ([]*Record, error)
}
