package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/openbadgekit/badgecore/pkg/keycodec"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// VerificationMethodWellKnown marks records established via the well-known
// document flow.
const VerificationMethodWellKnown = "well-known"

// Verifier fetches and validates well-known issuer documents and maintains
// the corresponding trust records.
type Verifier struct {
	fetcher Fetcher
	store   truststore.Store

	// Now overrides the clock, for tests. nil means time.Now.
	Now func() time.Time
}

// NewVerifier creates a Verifier using the given fetcher and trust store.
func NewVerifier(fetcher Fetcher, store truststore.Store) *Verifier {
	return &Verifier{fetcher: fetcher, store: store}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// Verify fetches the domain's well-known document, validates it, binds its
// id to the domain, and persists the outcome.
//
// On success the prior record, if any, is overwritten. On failure an existing
// record is degraded in place to status=failed, preserving verified-era
// metadata; when no record exists, none is created. Verify is idempotent but
// never repeated automatically; callers own the re-verification cadence.
func (v *Verifier) Verify(ctx context.Context, domain string) (*truststore.Record, error) {
	domain = truststore.NormalizeDomain(domain)

	doc, raw, verr := v.fetchAndValidate(ctx, domain)
	if verr != nil {
		v.recordFailure(domain, verr)
		return nil, verr
	}

	now := v.now()
	rec := &truststore.Record{
		Domain:                  domain,
		Status:                  truststore.StatusVerified,
		DisplayName:             doc.Name,
		Type:                    doc.Type,
		URL:                     doc.URL,
		Email:                   doc.Email,
		PublicKeys:              publicKeyPEMs(doc),
		WellKnownURL:            WellKnownURL(domain),
		VerificationMethod:      VerificationMethodWellKnown,
		Document:                raw,
		LastVerified:            now,
		LastVerificationAttempt: now,
	}

	if err := v.store.Put(domain, rec); err != nil {
		return nil, fmt.Errorf("failed to persist trust record: %w", err)
	}
	return rec, nil
}

// fetchAndValidate runs the verification pipeline up to, but not including,
// persistence.
func (v *Verifier) fetchAndValidate(ctx context.Context, domain string) (*Document, json.RawMessage, *Error) {
	wellKnown := WellKnownURL(domain)
	if u, err := url.Parse(wellKnown); err != nil || domain == "" || u.Hostname() == "" {
		return nil, nil, &Error{
			Code:    CodeInvalidURL,
			Message: fmt.Sprintf("cannot build well-known URL for domain %q", domain),
		}
	}

	resp, err := v.fetcher.Fetch(ctx, wellKnown)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, WrapError(CodeFetchTimeout, fmt.Sprintf("fetching %s timed out", wellKnown), err)
		}
		return nil, nil, WrapError(CodeFetchFailure, fmt.Sprintf("failed to fetch %s", wellKnown), err)
	}

	if resp.Status < 200 || resp.Status > 299 {
		return nil, nil, &Error{
			Code:    CodeFetchFailure,
			Message: fmt.Sprintf("%s returned status %d", wellKnown, resp.Status),
			Status:  resp.Status,
		}
	}

	if !resp.JSON() {
		return nil, nil, &Error{
			Code:    CodeNonJSONResponse,
			Message: fmt.Sprintf("%s returned Content-Type %q, expected application/json", wellKnown, resp.Header.Get("Content-Type")),
		}
	}

	var doc Document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, nil, WrapError(CodeInvalidJSON, fmt.Sprintf("%s did not return a JSON object", wellKnown), err)
	}

	if missing := doc.MissingFields(); len(missing) > 0 {
		return nil, nil, &Error{
			Code:          CodeMissingFields,
			Message:       fmt.Sprintf("well-known document is missing required fields: %s", strings.Join(missing, ", ")),
			MissingFields: missing,
		}
	}

	if !doc.ValidType() {
		return nil, nil, &Error{
			Code:    CodeInvalidType,
			Message: fmt.Sprintf("well-known document type %q must be %q or %q", doc.Type, TypeIssuer, TypeProfile),
		}
	}

	if !identityBound(doc.ID, domain) {
		return nil, nil, &Error{
			Code:     CodeIdentityBinding,
			Message:  fmt.Sprintf("document id %q does not identify domain %q", doc.ID, domain),
			Expected: wellKnown,
			Actual:   doc.ID,
		}
	}

	return &doc, json.RawMessage(resp.Body), nil
}

// recordFailure degrades an existing record in place. When no record exists
// the failure leaves no trace in the store.
func (v *Verifier) recordFailure(domain string, verr *Error) {
	_ = v.store.Update(domain, func(prev *truststore.Record) (*truststore.Record, error) {
		if prev == nil {
			return nil, nil
		}
		prev.Status = truststore.StatusFailed
		prev.LastError = verr.Error()
		prev.LastVerificationAttempt = v.now()
		return prev, nil
	})
}

// publicKeyPEMs collects the document's published keys in PEM form. Keys
// that fail to decode are skipped; key resolution works from the raw
// document and applies its own decoding.
func publicKeyPEMs(doc *Document) []string {
	var pems []string
	add := func(raw json.RawMessage) {
		if pem := pemFromKeyField(raw); pem != "" {
			pems = append(pems, pem)
		}
	}

	add(doc.PublicKey)
	if len(doc.PublicKeys) > 0 {
		var entries []json.RawMessage
		if err := json.Unmarshal(doc.PublicKeys, &entries); err == nil {
			for _, entry := range entries {
				add(entry)
			}
		}
	}
	return pems
}

func pemFromKeyField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return pemFromKeyString(s)
	}

	var obj struct {
		PublicKeyPem       string `json:"publicKeyPem"`
		PublicKeyMultibase string `json:"publicKeyMultibase"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.PublicKeyPem != "" {
		return pemFromKeyString(obj.PublicKeyPem)
	}
	return pemFromKeyString(obj.PublicKeyMultibase)
}

func pemFromKeyString(s string) string {
	if s == "" {
		return ""
	}
	if strings.Contains(s, "BEGIN PUBLIC KEY") {
		if _, err := keycodec.DecodePublicPEM(s); err == nil {
			return s
		}
		return ""
	}
	pem, err := keycodec.MultibaseToPEM(s)
	if err != nil {
		return ""
	}
	return pem
}

// identityBound checks that the document id equals one of the accepted
// identifiers for the domain.
func identityBound(id, domain string) bool {
	switch id {
	case WellKnownURL(domain), "https://" + domain, "https://" + domain + "/":
		return true
	}
	return false
}

// isTimeout classifies transport errors that should surface as FETCH_TIMEOUT.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
