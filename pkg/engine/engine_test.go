package engine_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbadgekit/badgecore/pkg/credential"
	"github.com/openbadgekit/badgecore/pkg/domain"
	"github.com/openbadgekit/badgecore/pkg/engine"
	"github.com/openbadgekit/badgecore/pkg/issuer"
	"github.com/openbadgekit/badgecore/pkg/keycodec"
	"github.com/openbadgekit/badgecore/pkg/keys"
	"github.com/openbadgekit/badgecore/pkg/signature"
	"github.com/openbadgekit/badgecore/pkg/trustlevel"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// fakeFetcher serves canned JSON documents per URL.
type fakeFetcher struct {
	responses map[string]*issuer.Response
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]*issuer.Response)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*issuer.Response, error) {
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return &issuer.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
}

func (f *fakeFetcher) serveJSON(url string, doc any) {
	body, _ := json.Marshal(doc)
	f.responses[url] = &issuer.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	}
}

// allResolver resolves every host; credentials in these tests reference
// domains that plausibly exist.
type allResolver struct{}

func (allResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return []string{"192.0.2.1"}, nil
}

type fixture struct {
	eng     *engine.Engine
	store   *truststore.MemoryStore
	fetcher *fakeFetcher
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	privPEM, err := keycodec.EncodePrivatePEM(priv)
	require.NoError(t, err)

	store := truststore.NewMemoryStore()
	fetcher := newFakeFetcher()
	eng := engine.New(engine.Config{
		OwnDomain:     "badges.example.dev",
		Environment:   keys.EnvironmentProduction,
		SigningKeyPEM: privPEM,
	}, store, keys.NewMemoryCache(time.Hour), fetcher, allResolver{})

	return &fixture{eng: eng, store: store, fetcher: fetcher, pub: pub, priv: priv}
}

func v3Credential(issuerDomain string) credential.Document {
	return credential.Document{
		"@context":  []any{"https://www.w3.org/ns/credentials/v2"},
		"type":      []any{"VerifiableCredential", "OpenBadgeCredential"},
		"id":        "https://" + issuerDomain + "/credentials/42",
		"name":      "Original",
		"issuer":    map[string]any{"id": "https://" + issuerDomain},
		"validFrom": "2026-01-15T00:00:00Z",
		"credentialSubject": map[string]any{
			"achievement": map[string]any{"id": "https://" + issuerDomain + "/achievements/7"},
		},
	}
}

func (f *fixture) serveIssuer(t *testing.T, domainName string, embedKey bool) {
	t.Helper()
	doc := map[string]any{
		"id":   issuer.WellKnownURL(domainName),
		"type": "Issuer",
		"name": "Issuer " + domainName,
	}
	if embedKey {
		pubPEM, err := keycodec.EncodePublicPEM(f.pub)
		require.NoError(t, err)
		doc["publicKey"] = pubPEM
	}
	f.fetcher.serveJSON(issuer.WellKnownURL(domainName), doc)
}

func mustJSON(t *testing.T, doc credential.Document) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestVerifyCredentialStructureOnly(t *testing.T) {
	f := newFixture(t)

	// demo.example.org is on the default safe-test list: accepted without
	// an issuer check.
	res, err := f.eng.VerifyCredential(context.Background(),
		engine.Input{JSON: mustJSON(t, v3Credential("demo.example.org"))}, engine.Options{})
	require.NoError(t, err)

	assert.True(t, res.Structure.Valid)
	assert.False(t, res.Issuer.Checked)
	assert.Nil(t, res.Signature)
	assert.Equal(t, trustlevel.StructureOnly, res.TrustLevel)
	assert.True(t, res.Valid)
}

func TestVerifyCredentialUnverifiedDomainPolicy(t *testing.T) {
	f := newFixture(t)

	// blocked.example.io resolves in DNS and has no trust record.
	doc := credential.Document{
		"@context":  "https://w3id.org/openbadges/v2",
		"type":      "Assertion",
		"badge":     "https://blocked.example.io/badge/1",
		"recipient": map[string]any{"identity": "alice@example.org"},
		"issuedOn":  "2026-01-15T00:00:00Z",
	}
	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{JSON: mustJSON(t, doc)}, engine.Options{})
	require.NoError(t, err)

	assert.True(t, res.Structure.Valid)
	assert.True(t, res.Issuer.Checked)
	assert.False(t, res.Issuer.Valid)
	assert.Equal(t, engine.CodeDomainPolicyUnverified, res.Issuer.Code)
	assert.Equal(t, trustlevel.StructureValidIssuerInvalid, res.TrustLevel)
	assert.False(t, res.Valid)
}

func TestVerifyCredentialFullyVerifiedViaLocalStore(t *testing.T) {
	f := newFixture(t)
	f.serveIssuer(t, "issuer.example.io", false)

	_, err := f.eng.VerifyIssuer(context.Background(), "issuer.example.io")
	require.NoError(t, err)

	res, err := f.eng.VerifyCredential(context.Background(),
		engine.Input{JSON: mustJSON(t, v3Credential("issuer.example.io"))}, engine.Options{})
	require.NoError(t, err)

	assert.True(t, res.Issuer.Checked)
	assert.True(t, res.Issuer.Valid)
	assert.Equal(t, trustlevel.MethodLocal, res.Issuer.Method)
	assert.Equal(t, trustlevel.FullyVerified, res.TrustLevel)
	assert.True(t, res.Valid)
}

func TestVerifyCredentialRemoteVerifiedViaLiveFetch(t *testing.T) {
	f := newFixture(t)
	f.serveIssuer(t, "issuer.example.io", false)

	res, err := f.eng.VerifyCredential(context.Background(),
		engine.Input{JSON: mustJSON(t, v3Credential("issuer.example.io"))},
		engine.Options{FetchIssuer: true})
	require.NoError(t, err)

	assert.True(t, res.Issuer.Valid)
	assert.Equal(t, trustlevel.MethodRemote, res.Issuer.Method)
	assert.Equal(t, trustlevel.RemoteVerified, res.TrustLevel)

	// The live fetch persisted a record, so the next request short-circuits
	// to the local store and the level only goes up.
	res, err = f.eng.VerifyCredential(context.Background(),
		engine.Input{JSON: mustJSON(t, v3Credential("issuer.example.io"))}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, trustlevel.FullyVerified, res.TrustLevel)
}

func TestVerifyCredentialCryptographicallyVerified(t *testing.T) {
	f := newFixture(t)
	f.serveIssuer(t, "issuer.example.io", true)

	_, err := f.eng.VerifyIssuer(context.Background(), "issuer.example.io")
	require.NoError(t, err)

	key := &keycodec.Key{Public: f.pub, Private: f.priv}
	signed, err := (&signature.Signer{}).Sign(v3Credential("issuer.example.io"), key, "issuer.example.io")
	require.NoError(t, err)

	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{JSON: mustJSON(t, signed)}, engine.Options{})
	require.NoError(t, err)

	require.NotNil(t, res.Signature)
	assert.True(t, res.Signature.Valid)
	assert.Equal(t, trustlevel.CryptographicallyVerified, res.TrustLevel)
	assert.True(t, res.Valid)
}

func TestVerifyCredentialTamperedSignature(t *testing.T) {
	f := newFixture(t)
	f.serveIssuer(t, "issuer.example.io", true)

	_, err := f.eng.VerifyIssuer(context.Background(), "issuer.example.io")
	require.NoError(t, err)

	key := &keycodec.Key{Public: f.pub, Private: f.priv}
	signed, err := (&signature.Signer{}).Sign(v3Credential("issuer.example.io"), key, "issuer.example.io")
	require.NoError(t, err)
	signed["name"] = "Tampered"

	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{JSON: mustJSON(t, signed)}, engine.Options{})
	require.NoError(t, err)

	assert.True(t, res.Structure.Valid)
	require.NotNil(t, res.Signature)
	assert.False(t, res.Signature.Valid)
	assert.Equal(t, signature.ReasonSignatureInvalid, res.Signature.Reason)
	assert.Less(t, res.TrustLevel, trustlevel.CryptographicallyVerified)
	assert.False(t, res.Valid)
}

func TestVerifyCredentialProofWithoutVerifiedIssuerSkipsSignature(t *testing.T) {
	f := newFixture(t)

	signed, err := (&signature.Signer{}).Sign(v3Credential("blocked.example.io"),
		&keycodec.Key{Public: f.pub, Private: f.priv}, "blocked.example.io")
	require.NoError(t, err)

	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{JSON: mustJSON(t, signed)}, engine.Options{})
	require.NoError(t, err)

	assert.Nil(t, res.Signature, "signature is only checked once an issuer is valid")
	assert.Equal(t, trustlevel.StructureValidIssuerInvalid, res.TrustLevel)
}

func TestVerifyCredentialStructurallyInvalid(t *testing.T) {
	f := newFixture(t)

	doc := credential.Document{"type": "Assertion"}
	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{JSON: mustJSON(t, doc)}, engine.Options{})
	require.NoError(t, err)

	assert.False(t, res.Structure.Valid)
	assert.Equal(t, trustlevel.Invalid, res.TrustLevel)
	assert.False(t, res.Valid)
}

func TestVerifyCredentialFromURL(t *testing.T) {
	f := newFixture(t)
	f.serveIssuer(t, "issuer.example.io", false)
	_, err := f.eng.VerifyIssuer(context.Background(), "issuer.example.io")
	require.NoError(t, err)

	credURL := "https://issuer.example.io/credentials/42"
	f.fetcher.serveJSON(credURL, v3Credential("issuer.example.io"))

	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{URL: credURL}, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, trustlevel.FullyVerified, res.TrustLevel)
}

func TestVerifyCredentialBoundaryErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.VerifyCredential(context.Background(), engine.Input{}, engine.Options{})
	assert.True(t, errors.Is(err, engine.ErrNoCredential))

	_, err = f.eng.VerifyCredential(context.Background(), engine.Input{JSON: []byte("{broken")}, engine.Options{})
	assert.Error(t, err)

	_, err = f.eng.VerifyCredential(context.Background(), engine.Input{URL: "https://nowhere.example.io/c/1"}, engine.Options{})
	assert.Error(t, err, "404 on the credential URL is a boundary error")
}

func TestSignCredentialRoundTrip(t *testing.T) {
	f := newFixture(t)

	signed, err := f.eng.SignCredential(context.Background(), v3Credential("badges.example.dev"), "badges.example.dev")
	require.NoError(t, err)
	require.True(t, signed.HasProof())

	// Own domain verifies with the env-provided key.
	res, err := f.eng.VerifyCredential(context.Background(), engine.Input{JSON: mustJSON(t, signed)}, engine.Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Signature)
	assert.True(t, res.Signature.Valid)
	assert.Equal(t, trustlevel.CryptographicallyVerified, res.TrustLevel)
}

func TestSignCredentialNoKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.SignCredential(context.Background(), v3Credential("other.example.io"), "other.example.io")
	assert.Error(t, err)
}

func TestVerifyIssuerFailureDegradesTier(t *testing.T) {
	f := newFixture(t)
	f.serveIssuer(t, "issuer.example.io", false)

	_, err := f.eng.VerifyIssuer(context.Background(), "issuer.example.io")
	require.NoError(t, err)

	// The issuer takes the document down; re-verification degrades the record
	// and subsequent domain classification surfaces the failure.
	delete(f.fetcher.responses, issuer.WellKnownURL("issuer.example.io"))
	_, err = f.eng.ReverifyIssuer(context.Background(), "issuer.example.io")
	require.Error(t, err)

	cls := f.eng.ValidateDomain(context.Background(), "https://issuer.example.io")
	assert.Equal(t, domain.TierVerificationFailed, cls.Tier)
	assert.False(t, cls.Valid)
}

func TestValidateDomainOwn(t *testing.T) {
	f := newFixture(t)
	cls := f.eng.ValidateDomain(context.Background(), "https://badges.example.dev/anything")
	assert.Equal(t, domain.TierVerified, cls.Tier)
}
