package signature_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbadgekit/badgecore/pkg/credential"
	"github.com/openbadgekit/badgecore/pkg/keycodec"
	"github.com/openbadgekit/badgecore/pkg/signature"
)

func genKey(t *testing.T) *keycodec.Key {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &keycodec.Key{Public: pub, Private: priv, Domain: "issuer.example.org"}
}

func sampleDoc() credential.Document {
	return credential.Document{
		"@context": []any{"https://www.w3.org/ns/credentials/v2"},
		"type":     []any{"VerifiableCredential", "OpenBadgeCredential"},
		"id":       "https://issuer.example.org/credentials/42",
		"name":     "Original",
		"issuer":   map[string]any{"id": "https://issuer.example.org"},
		"credentialSubject": map[string]any{
			"achievement": map[string]any{"id": "https://issuer.example.org/achievements/7"},
		},
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := genKey(t)
	signer := &signature.Signer{Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }}

	signed, err := signer.Sign(sampleDoc(), key, "issuer.example.org")
	require.NoError(t, err)
	require.True(t, signed.HasProof())

	proof := signed["proof"].(map[string]any)
	assert.Equal(t, signature.ProofType, proof["type"])
	assert.Equal(t, signature.ProofPurpose, proof["proofPurpose"])
	assert.Equal(t, "https://issuer.example.org/.well-known/openbadges-issuer.json#key", proof["verificationMethod"])
	assert.Equal(t, "2026-03-01T12:00:00Z", proof["created"])

	res := signature.Verify(signed, key)
	assert.True(t, res.Valid)
	assert.Equal(t, signature.ReasonVerified, res.Reason)
	assert.Equal(t, signature.ProofType, res.ProofType)
	assert.Contains(t, res.VerificationMethod, "#key")
}

func TestSignDoesNotMutateInput(t *testing.T) {
	key := genKey(t)
	doc := sampleDoc()
	_, err := (&signature.Signer{}).Sign(doc, key, "issuer.example.org")
	require.NoError(t, err)
	assert.False(t, doc.HasProof())
}

func TestTamperedCredentialFailsVerification(t *testing.T) {
	key := genKey(t)
	signed, err := (&signature.Signer{}).Sign(sampleDoc(), key, "issuer.example.org")
	require.NoError(t, err)

	signed["name"] = "Tampered"
	res := signature.Verify(signed, key)
	assert.False(t, res.Valid)
	assert.Equal(t, signature.ReasonSignatureInvalid, res.Reason)
}

func TestVerifyWrongKey(t *testing.T) {
	signed, err := (&signature.Signer{}).Sign(sampleDoc(), genKey(t), "issuer.example.org")
	require.NoError(t, err)

	res := signature.Verify(signed, genKey(t))
	assert.False(t, res.Valid)
	assert.Equal(t, signature.ReasonSignatureInvalid, res.Reason)
}

func TestVerifyNoKey(t *testing.T) {
	signed, err := (&signature.Signer{}).Sign(sampleDoc(), genKey(t), "issuer.example.org")
	require.NoError(t, err)

	res := signature.Verify(signed, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, signature.ReasonNoPublicKey, res.Reason)
	assert.Equal(t, signature.ProofType, res.ProofType, "declared proof fields still reported")
}

func TestVerifyBareStringProof(t *testing.T) {
	key := genKey(t)
	doc := sampleDoc()

	canonical, err := signature.CanonicalBytes(doc)
	require.NoError(t, err)
	sig := base64.RawURLEncoding.EncodeToString(ed25519.Sign(key.Private, canonical))

	doc["proof"] = sig
	res := signature.Verify(doc, key)
	assert.True(t, res.Valid)
}

func TestVerifyProofValueFallback(t *testing.T) {
	key := genKey(t)
	doc := sampleDoc()

	canonical, err := signature.CanonicalBytes(doc)
	require.NoError(t, err)
	sig := base64.RawURLEncoding.EncodeToString(ed25519.Sign(key.Private, canonical))

	doc["proof"] = map[string]any{"type": signature.ProofType, "proofValue": sig}
	res := signature.Verify(doc, key)
	assert.True(t, res.Valid)
}

func TestVerifyInvalidProofFormat(t *testing.T) {
	key := genKey(t)

	for name, proof := range map[string]any{
		"empty object":  map[string]any{"type": signature.ProofType},
		"empty string":  "",
		"numeric proof": 42.0,
		"not base64url": map[string]any{"jws": "!!!not-base64!!!"},
	} {
		t.Run(name, func(t *testing.T) {
			doc := sampleDoc()
			doc["proof"] = proof
			res := signature.Verify(doc, key)
			assert.False(t, res.Valid)
			assert.Equal(t, signature.ReasonInvalidProofFormat, res.Reason)
		})
	}

	t.Run("no proof at all", func(t *testing.T) {
		res := signature.Verify(sampleDoc(), key)
		assert.False(t, res.Valid)
		assert.Equal(t, signature.ReasonInvalidProofFormat, res.Reason)
	})
}

func TestVerifyAcceptsPaddedBase64URL(t *testing.T) {
	key := genKey(t)
	doc := sampleDoc()

	canonical, err := signature.CanonicalBytes(doc)
	require.NoError(t, err)
	sig := base64.URLEncoding.EncodeToString(ed25519.Sign(key.Private, canonical))

	doc["proof"] = map[string]any{"jws": sig}
	res := signature.Verify(doc, key)
	assert.True(t, res.Valid)
}

func TestSignRequiresPrivateKey(t *testing.T) {
	key := genKey(t)
	key.Private = nil
	_, err := (&signature.Signer{}).Sign(sampleDoc(), key, "issuer.example.org")
	assert.ErrorIs(t, err, keycodec.ErrNoPrivateKey)
}

func TestCanonicalBytesStable(t *testing.T) {
	doc := sampleDoc()
	a, err := signature.CanonicalBytes(doc)
	require.NoError(t, err)

	withProof := doc.Clone()
	withProof["proof"] = map[string]any{"jws": "whatever"}
	b, err := signature.CanonicalBytes(withProof)
	require.NoError(t, err)

	assert.Equal(t, a, b, "proof never feeds the canonical form")
}
