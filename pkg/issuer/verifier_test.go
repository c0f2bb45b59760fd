package issuer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbadgekit/badgecore/pkg/issuer"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// fakeFetcher serves canned responses per URL without a network.
type fakeFetcher struct {
	responses map[string]*issuer.Response
	errs      map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*issuer.Response),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*issuer.Response, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return &issuer.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
}

func (f *fakeFetcher) serveJSON(url string, doc any) {
	body, _ := json.Marshal(doc)
	f.responses[url] = &issuer.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:   body,
	}
}

func wellKnownDoc(domain string) map[string]any {
	return map[string]any{
		"id":   issuer.WellKnownURL(domain),
		"type": "Issuer",
		"name": "Example Issuer",
		"url":  "https://" + domain,
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestVerifySuccess(t *testing.T) {
	const domain = "issuer.example.org"
	fetcher := newFakeFetcher()
	fetcher.serveJSON(issuer.WellKnownURL(domain), wellKnownDoc(domain))
	store := truststore.NewMemoryStore()

	v := issuer.NewVerifier(fetcher, store)
	rec, err := v.Verify(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, truststore.StatusVerified, rec.Status)
	assert.Equal(t, "Example Issuer", rec.DisplayName)
	assert.Equal(t, "Issuer", rec.Type)
	assert.Equal(t, issuer.VerificationMethodWellKnown, rec.VerificationMethod)
	assert.Equal(t, issuer.WellKnownURL(domain), rec.WellKnownURL)
	assert.NotEmpty(t, rec.Document, "raw document kept for audit")
	assert.False(t, rec.LastVerified.IsZero())

	stored, err := store.Get(domain)
	require.NoError(t, err)
	assert.True(t, stored.Verified())
}

func TestVerifyAcceptsDomainRootID(t *testing.T) {
	const domain = "issuer.example.org"
	for _, id := range []string{"https://" + domain, "https://" + domain + "/"} {
		fetcher := newFakeFetcher()
		doc := wellKnownDoc(domain)
		doc["id"] = id
		fetcher.serveJSON(issuer.WellKnownURL(domain), doc)

		v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
		_, err := v.Verify(context.Background(), domain)
		assert.NoError(t, err, "id %q", id)
	}
}

func TestVerifyNormalizesDomain(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serveJSON(issuer.WellKnownURL("issuer.example.org"), wellKnownDoc("issuer.example.org"))
	store := truststore.NewMemoryStore()

	v := issuer.NewVerifier(fetcher, store)
	_, err := v.Verify(context.Background(), "Issuer.Example.ORG")
	require.NoError(t, err)

	_, err = store.Get("issuer.example.org")
	assert.NoError(t, err)
}

func TestVerifyMissingName(t *testing.T) {
	const domain = "x.test"
	fetcher := newFakeFetcher()
	fetcher.serveJSON(issuer.WellKnownURL(domain), map[string]any{
		"id":   issuer.WellKnownURL(domain),
		"type": "Issuer",
	})

	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), domain)
	require.Error(t, err)

	verr, ok := issuer.AsError(err)
	require.True(t, ok)
	assert.Equal(t, issuer.CodeMissingFields, verr.Code)
	assert.Equal(t, []string{"name"}, verr.MissingFields)
	assert.ErrorIs(t, err, issuer.ErrMissingFields)
}

func TestVerifyInvalidType(t *testing.T) {
	const domain = "issuer.example.org"
	fetcher := newFakeFetcher()
	doc := wellKnownDoc(domain)
	doc["type"] = "Organization"
	fetcher.serveJSON(issuer.WellKnownURL(domain), doc)

	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), domain)
	assert.ErrorIs(t, err, issuer.ErrInvalidType)
}

func TestVerifyIdentityBindingMismatch(t *testing.T) {
	const domain = "issuer.example.org"
	fetcher := newFakeFetcher()
	doc := wellKnownDoc(domain)
	doc["id"] = "https://attacker.example/.well-known/openbadges-issuer.json"
	fetcher.serveJSON(issuer.WellKnownURL(domain), doc)

	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), domain)
	require.ErrorIs(t, err, issuer.ErrIdentityBinding)

	verr, _ := issuer.AsError(err)
	assert.Equal(t, issuer.WellKnownURL(domain), verr.Expected)
	assert.Equal(t, "https://attacker.example/.well-known/openbadges-issuer.json", verr.Actual)
}

func TestVerifyNonJSONContentType(t *testing.T) {
	const domain = "issuer.example.org"
	fetcher := newFakeFetcher()
	fetcher.responses[issuer.WellKnownURL(domain)] = &issuer.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte("<html></html>"),
	}

	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), domain)
	assert.ErrorIs(t, err, issuer.ErrNonJSONResponse)
}

func TestVerifyInvalidJSONBody(t *testing.T) {
	const domain = "issuer.example.org"
	fetcher := newFakeFetcher()
	fetcher.responses[issuer.WellKnownURL(domain)] = &issuer.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte("{not json"),
	}

	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), domain)
	assert.ErrorIs(t, err, issuer.ErrInvalidJSON)
}

func TestVerifyFetchFailureStatus(t *testing.T) {
	fetcher := newFakeFetcher() // serves 404 for everything
	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())

	_, err := v.Verify(context.Background(), "missing.example.org")
	require.ErrorIs(t, err, issuer.ErrFetchFailure)

	verr, _ := issuer.AsError(err)
	assert.Equal(t, http.StatusNotFound, verr.Status)
}

func TestVerifyTimeoutClassified(t *testing.T) {
	const domain = "slow.example.org"
	fetcher := newFakeFetcher()
	fetcher.errs[issuer.WellKnownURL(domain)] = timeoutErr{}

	v := issuer.NewVerifier(fetcher, truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), domain)
	assert.ErrorIs(t, err, issuer.ErrFetchTimeout)
}

func TestVerifyFailureLeavesNoNewRecord(t *testing.T) {
	store := truststore.NewMemoryStore()
	v := issuer.NewVerifier(newFakeFetcher(), store)

	_, err := v.Verify(context.Background(), "missing.example.org")
	require.Error(t, err)

	_, err = store.Get("missing.example.org")
	assert.ErrorIs(t, err, truststore.ErrNotFound)
}

func TestVerifyFailureDegradesExistingRecord(t *testing.T) {
	const domain = "issuer.example.org"
	fetcher := newFakeFetcher()
	fetcher.serveJSON(issuer.WellKnownURL(domain), wellKnownDoc(domain))
	store := truststore.NewMemoryStore()

	v := issuer.NewVerifier(fetcher, store)
	v.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := v.Verify(context.Background(), domain)
	require.NoError(t, err)

	// The issuer takes its document down; re-verification degrades in place.
	delete(fetcher.responses, issuer.WellKnownURL(domain))
	v.Now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	_, err = v.Verify(context.Background(), domain)
	require.Error(t, err)

	rec, err := store.Get(domain)
	require.NoError(t, err)
	assert.Equal(t, truststore.StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, issuer.CodeFetchFailure)
	assert.Equal(t, "Example Issuer", rec.DisplayName, "verified-era metadata preserved")
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), rec.LastVerified)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), rec.LastVerificationAttempt)
}

func TestVerifyInvalidDomain(t *testing.T) {
	v := issuer.NewVerifier(newFakeFetcher(), truststore.NewMemoryStore())
	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, issuer.ErrInvalidURL)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "badgecore/")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	f := issuer.NewHTTPFetcher("test")
	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.JSON())
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestHTTPFetcherHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := issuer.NewHTTPFetcher("test")
	_, err := f.Fetch(ctx, srv.URL)
	assert.Error(t, err)
}
