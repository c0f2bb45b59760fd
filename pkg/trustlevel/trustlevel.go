// Package trustlevel composes the three verification sub-results into one
// ordered trust level. Higher ordinal values indicate stronger guarantees.
package trustlevel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level classifies how strongly a credential's authenticity was established.
type Level int

const (
	// Invalid means structure validation failed.
	Invalid Level = iota
	// StructureOnly means structure is valid but no issuer check was performed.
	StructureOnly
	// StructureValidIssuerInvalid means the issuer check was performed and failed.
	StructureValidIssuerInvalid
	// BasicVerified means the issuer is valid but the resolution method is unrecognized.
	BasicVerified
	// RemoteVerified means the issuer was validated via a direct well-known fetch.
	RemoteVerified
	// FullyVerified means the issuer was validated against the local trust store.
	FullyVerified
	// CryptographicallyVerified means a present signature verified against the
	// issuer's key, on top of a valid issuer.
	CryptographicallyVerified
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case Invalid:
		return "invalid"
	case StructureOnly:
		return "structure_only"
	case StructureValidIssuerInvalid:
		return "structure_valid_issuer_invalid"
	case BasicVerified:
		return "basic_verified"
	case RemoteVerified:
		return "remote_verified"
	case FullyVerified:
		return "fully_verified"
	case CryptographicallyVerified:
		return "cryptographically_verified"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// MarshalJSON encodes the level as its wire name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a wire name into a level.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Parse converts a wire name back into a Level.
func Parse(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "invalid":
		return Invalid, nil
	case "structure_only":
		return StructureOnly, nil
	case "structure_valid_issuer_invalid":
		return StructureValidIssuerInvalid, nil
	case "basic_verified":
		return BasicVerified, nil
	case "remote_verified":
		return RemoteVerified, nil
	case "fully_verified":
		return FullyVerified, nil
	case "cryptographically_verified":
		return CryptographicallyVerified, nil
	default:
		return 0, fmt.Errorf("unknown trust level: %q", s)
	}
}

// Issuer resolution methods recognized by the classifier.
const (
	// MethodLocal means a verified record already existed in the trust store.
	MethodLocal = "local"
	// MethodRemote means the issuer was validated by a direct well-known fetch.
	MethodRemote = "remote"
)

// Structure is the structure-validation outcome fed to the classifier.
type Structure struct {
	Valid bool
}

// Issuer is the issuer-verification outcome fed to the classifier.
type Issuer struct {
	// Checked is false when no issuer check was attempted.
	Checked bool
	Valid   bool
	// Method is MethodLocal, MethodRemote, or anything else for BasicVerified.
	Method string
}

// Signature is the signature-verification outcome fed to the classifier.
type Signature struct {
	// Checked is false when no proof was present or no check was attempted.
	Checked bool
	Valid   bool
}

// Classify composes the three sub-results into one level.
//
// Structural invalidity dominates everything. A missing issuer check caps at
// StructureOnly, a failed one at StructureValidIssuerInvalid. On a valid
// issuer, signature evidence dominates the resolution method.
func Classify(structure Structure, issuer Issuer, sig Signature) Level {
	if !structure.Valid {
		return Invalid
	}
	if !issuer.Checked {
		return StructureOnly
	}
	if !issuer.Valid {
		return StructureValidIssuerInvalid
	}
	if sig.Checked && sig.Valid {
		return CryptographicallyVerified
	}
	switch issuer.Method {
	case MethodLocal:
		return FullyVerified
	case MethodRemote:
		return RemoteVerified
	default:
		return BasicVerified
	}
}

// Compose returns the trust level together with the overall validity:
// structure must be valid, and any performed issuer or signature check must
// have passed.
func Compose(structure Structure, issuer Issuer, sig Signature) (Level, bool) {
	level := Classify(structure, issuer, sig)
	valid := structure.Valid &&
		(!issuer.Checked || issuer.Valid) &&
		(!sig.Checked || sig.Valid)
	return level, valid
}
