// Package signature verifies and produces detached Ed25519 proofs over
// credential documents.
//
// The canonical form of a credential is its JSON serialization with the
// proof field removed and no extraneous whitespace; encoding/json emits map
// keys in sorted order, so signer and verifier in this module agree
// byte-for-byte. Ed25519 signs the canonical bytes directly; the algorithm
// hashes internally, so there is no pre-hash step.
package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openbadgekit/badgecore/pkg/credential"
	"github.com/openbadgekit/badgecore/pkg/issuer"
	"github.com/openbadgekit/badgecore/pkg/keycodec"
)

// ProofType is the proof suite name attached to signed credentials.
const ProofType = "Ed25519Signature2020"

// ProofPurpose is the declared purpose of produced proofs.
const ProofPurpose = "assertionMethod"

// Outcome reasons reported by Verify.
const (
	ReasonInvalidProofFormat = "invalid_proof_format"
	ReasonNoPublicKey        = "no_public_key"
	ReasonSignatureInvalid   = "signature_invalid"
	ReasonVerified           = "signature_verified"
)

// Result is the outcome of a signature verification.
type Result struct {
	Valid bool `json:"valid"`

	// Reason is one of the Reason* constants.
	Reason string `json:"reason"`

	// ProofType and VerificationMethod echo the proof's declared values for
	// audit; empty when no structured proof was present.
	ProofType          string `json:"proofType,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`

	Message string `json:"message,omitempty"`
}

// CanonicalBytes serializes a credential without its proof field. Signing
// and verification both go through this single code path.
func CanonicalBytes(doc credential.Document) ([]byte, error) {
	clone := doc.Clone()
	delete(clone, "proof")
	data, err := json.Marshal(map[string]any(clone))
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize credential: %w", err)
	}
	return data, nil
}

// Verify checks the credential's detached proof against the given key.
// Callers are expected to have already established a valid issuer and the
// presence of a proof; a missing or malformed proof still reports cleanly.
func Verify(doc credential.Document, key *keycodec.Key) Result {
	proof, ok := doc.Proof()
	if !ok {
		return Result{Reason: ReasonInvalidProofFormat, Message: "credential carries no proof"}
	}

	encoded, proofType, method, ok := extractSignature(proof)
	if !ok {
		return Result{Reason: ReasonInvalidProofFormat, Message: "proof carries no jws or proofValue"}
	}

	res := Result{ProofType: proofType, VerificationMethod: method}

	if key == nil || len(key.Public) != ed25519.PublicKeySize {
		res.Reason = ReasonNoPublicKey
		res.Message = "no public key available for the issuer"
		return res
	}

	sig, err := decodeBase64URL(encoded)
	if err != nil {
		res.Reason = ReasonInvalidProofFormat
		res.Message = fmt.Sprintf("signature is not base64url: %v", err)
		return res
	}

	canonical, err := CanonicalBytes(doc)
	if err != nil {
		res.Reason = ReasonInvalidProofFormat
		res.Message = err.Error()
		return res
	}

	if !ed25519.Verify(key.Public, canonical, sig) {
		res.Reason = ReasonSignatureInvalid
		res.Message = "signature does not match credential content"
		return res
	}

	res.Valid = true
	res.Reason = ReasonVerified
	return res
}

// Signer produces detached proofs for credentials.
type Signer struct {
	// Now overrides the clock, for tests. nil means time.Now.
	Now func() time.Time
}

// Sign returns a copy of the credential carrying a proof computed over its
// canonical bytes. The key must include a private half; signingDomain names
// the well-known document whose key verifies the proof.
func (s *Signer) Sign(doc credential.Document, key *keycodec.Key, signingDomain string) (credential.Document, error) {
	if key == nil || !key.Signer() {
		return nil, keycodec.ErrNoPrivateKey
	}

	canonical, err := CanonicalBytes(doc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	signed := doc.Clone()
	signed["proof"] = map[string]any{
		"type":               ProofType,
		"created":            now.Format(time.RFC3339),
		"verificationMethod": issuer.WellKnownURL(signingDomain) + "#key",
		"proofPurpose":       ProofPurpose,
		"jws":                base64.RawURLEncoding.EncodeToString(ed25519.Sign(key.Private, canonical)),
	}
	return signed, nil
}

// extractSignature pulls the encoded signature out of the proof: the proof
// itself when it is a bare string, else proof.jws, else proof.proofValue.
func extractSignature(proof any) (encoded, proofType, method string, ok bool) {
	switch p := proof.(type) {
	case string:
		if p == "" {
			return "", "", "", false
		}
		return p, "", "", true
	case map[string]any:
		proofType, _ = p["type"].(string)
		method, _ = p["verificationMethod"].(string)
		if jws, _ := p["jws"].(string); jws != "" {
			return jws, proofType, method, true
		}
		if pv, _ := p["proofValue"].(string); pv != "" {
			return pv, proofType, method, true
		}
	}
	return "", proofType, method, false
}

func decodeBase64URL(s string) ([]byte, error) {
	if strings.Contains(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
