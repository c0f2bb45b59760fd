// Package engine composes domain classification, issuer verification, key
// resolution, structure validation, and signature verification into the four
// entry points the adapter layers call.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openbadgekit/badgecore/pkg/credential"
	"github.com/openbadgekit/badgecore/pkg/domain"
	"github.com/openbadgekit/badgecore/pkg/issuer"
	"github.com/openbadgekit/badgecore/pkg/keys"
	"github.com/openbadgekit/badgecore/pkg/signature"
	"github.com/openbadgekit/badgecore/pkg/trustlevel"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// Config carries the deployment policy the engine operates under.
type Config struct {
	// OwnDomain is the service's public domain.
	OwnDomain string

	// SafeTestDomains are accepted without verification (see pkg/domain).
	SafeTestDomains []string

	// AllowUnregistered opts in to accepting DNS-failing domains.
	AllowUnregistered bool

	// Environment gates non-production key fallbacks ("production" disables).
	Environment string

	// SigningKeyPEM is the environment-provided key for OwnDomain.
	SigningKeyPEM string

	// FallbackKeyFile is a local key path used outside production.
	FallbackKeyFile string

	// Version is reported in the fetch User-Agent.
	Version string
}

// Engine is the verification core. All entry points are safe for concurrent
// use; the trust store and key cache are the only shared mutable state.
type Engine struct {
	cfg        Config
	store      truststore.Store
	fetcher    issuer.Fetcher
	classifier *domain.Classifier
	issuers    *issuer.Verifier
	resolver   *keys.Resolver
	signer     *signature.Signer
}

// New wires an Engine. fetcher and dnsResolver may be nil to use the HTTP
// and net defaults; store and cache are required.
func New(cfg Config, store truststore.Store, cache keys.Cache, fetcher issuer.Fetcher, dnsResolver domain.Resolver) *Engine {
	if fetcher == nil {
		fetcher = issuer.NewHTTPFetcher(cfg.Version)
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		classifier: &domain.Classifier{
			OwnDomain:         cfg.OwnDomain,
			SafeTestDomains:   cfg.SafeTestDomains,
			AllowUnregistered: cfg.AllowUnregistered,
			Store:             store,
			Resolver:          dnsResolver,
		},
		issuers: issuer.NewVerifier(fetcher, store),
		resolver: &keys.Resolver{
			Cache:           cache,
			OwnDomain:       cfg.OwnDomain,
			Environment:     cfg.Environment,
			DefaultKeyPEM:   cfg.SigningKeyPEM,
			FallbackKeyFile: cfg.FallbackKeyFile,
		},
		signer: &signature.Signer{},
	}
}

// Store exposes the engine's trust store to adapter layers.
func (e *Engine) Store() truststore.Store {
	return e.store
}

// ValidateDomain classifies a URL's host under the deployment policy.
func (e *Engine) ValidateDomain(ctx context.Context, rawURL string) domain.Classification {
	return e.classifier.Classify(ctx, rawURL)
}

// VerifyIssuer runs the well-known verification flow for a domain and
// persists the outcome.
func (e *Engine) VerifyIssuer(ctx context.Context, domainName string) (*truststore.Record, error) {
	return e.issuers.Verify(ctx, domainName)
}

// ReverifyIssuer re-runs issuer verification regardless of any existing
// record. Re-verification cadence belongs to the caller; the engine never
// re-verifies on its own.
func (e *Engine) ReverifyIssuer(ctx context.Context, domainName string) (*truststore.Record, error) {
	return e.issuers.Verify(ctx, domainName)
}

// SignCredential attaches a detached proof to the credential using the
// signing key resolved for signingDomain.
func (e *Engine) SignCredential(ctx context.Context, doc credential.Document, signingDomain string) (credential.Document, error) {
	key, err := e.resolver.ResolveSigningKey(signingDomain)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("no signing key available for domain %q", signingDomain)
	}
	return e.signer.Sign(doc, key, signingDomain)
}

// ErrNoCredential is returned when an input carries neither a document nor a URL.
var ErrNoCredential = errors.New("no credential supplied: provide a JSON document or a URL")

// Input identifies the credential to verify: raw JSON or a URL to fetch it
// from. Exactly one should be set; JSON wins when both are.
type Input struct {
	JSON json.RawMessage
	URL  string
}

// Options tune a single verification request.
type Options struct {
	// FetchIssuer permits a live well-known fetch for issuer domains that
	// have no verified trust record. Without it the engine only consults
	// the trust store and domain policy, and unverified domains surface as
	// DOMAIN_POLICY_UNVERIFIED.
	FetchIssuer bool
}

// IssuerResult is the issuer sub-result of a verification.
type IssuerResult struct {
	// Checked is false when no issuer check was performed (no issuer URL in
	// the credential, or policy skipped the check for a test domain).
	Checked bool `json:"checked"`

	Valid bool `json:"valid"`

	// Method is how a valid issuer was established: trustlevel.MethodLocal
	// or trustlevel.MethodRemote.
	Method string `json:"method,omitempty"`

	// Domain is the issuer domain the check applied to.
	Domain string `json:"domain,omitempty"`

	// Code tags the failure kind for invalid results.
	Code string `json:"code,omitempty"`

	Message string `json:"message,omitempty"`
}

// Error codes specific to the credential-verification issuer check.
const (
	CodeDomainPolicyUnverified = "DOMAIN_POLICY_UNVERIFIED"
	CodeDomainPolicyBlocked    = "DOMAIN_POLICY_BLOCKED"
	CodeNoIssuerURL            = "NO_ISSUER_URL"
)

// VerificationResult is the composite verdict, produced fresh per request.
type VerificationResult struct {
	Structure  credential.Result   `json:"structure"`
	Issuer     IssuerResult        `json:"issuer"`
	Signature  *signature.Result   `json:"signature,omitempty"`
	TrustLevel trustlevel.Level    `json:"trustLevel"`
	Valid      bool                `json:"valid"`
	Document   credential.Document `json:"-"`
}

// VerifyCredential validates a credential's structure, resolves and checks
// its issuer, verifies a detached signature when a proof is present and the
// issuer is valid, and composes the trust level.
func (e *Engine) VerifyCredential(ctx context.Context, in Input, opts Options) (*VerificationResult, error) {
	doc, err := e.loadCredential(ctx, in)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		Document:  doc,
		Structure: credential.Validate(doc),
	}

	issuerDoc := e.checkIssuer(ctx, doc, opts, &result.Issuer)

	if doc.HasProof() && result.Issuer.Checked && result.Issuer.Valid {
		key, _ := e.resolver.Resolve(issuerDoc, doc.IssuerURL())
		sigResult := signature.Verify(doc, key)
		result.Signature = &sigResult
	}

	result.TrustLevel, result.Valid = trustlevel.Compose(
		trustlevel.Structure{Valid: result.Structure.Valid},
		trustlevel.Issuer{Checked: result.Issuer.Checked, Valid: result.Issuer.Valid, Method: result.Issuer.Method},
		signatureOutcome(result.Signature),
	)
	return result, nil
}

// loadCredential obtains the document from the input, fetching when a URL
// was supplied. Input problems are boundary errors, not verification
// results.
func (e *Engine) loadCredential(ctx context.Context, in Input) (credential.Document, error) {
	if len(in.JSON) > 0 {
		return credential.Parse(in.JSON)
	}
	if in.URL == "" {
		return nil, ErrNoCredential
	}

	resp, err := e.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credential from %s: %w", in.URL, err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, fmt.Errorf("credential fetch from %s returned status %d", in.URL, resp.Status)
	}
	return credential.Parse(resp.Body)
}

// checkIssuer fills the issuer sub-result and returns the issuer document
// when one was obtained, for key resolution.
func (e *Engine) checkIssuer(ctx context.Context, doc credential.Document, opts Options, out *IssuerResult) *issuer.Document {
	issuerDomain := doc.IssuerDomain()
	if issuerDomain == "" {
		if doc.IssuerURL() != "" {
			out.Checked = true
			out.Code = CodeNoIssuerURL
			out.Message = fmt.Sprintf("issuer URL %q has no resolvable host", doc.IssuerURL())
		}
		return nil
	}
	out.Domain = issuerDomain

	classification := e.classifier.Classify(ctx, "https://"+issuerDomain)
	switch classification.Tier {
	case domain.TierVerified:
		out.Checked = true
		out.Valid = true
		out.Method = trustlevel.MethodLocal
		out.Message = "issuer is this service's own domain"
		return e.storedIssuerDocument(issuerDomain)

	case domain.TierVerifiedExternal:
		out.Checked = true
		out.Valid = true
		out.Method = trustlevel.MethodLocal
		out.Message = classification.Message
		return e.storedIssuerDocument(issuerDomain)

	case domain.TierTesting, domain.TierUnregistered:
		// Policy accepts these domains without verification; no issuer
		// check is performed and the trust level caps at structure_only.
		out.Message = classification.Message
		return nil

	case domain.TierVerificationFailed:
		out.Checked = true
		out.Code = issuer.CodeFetchFailure
		out.Message = classification.Message
		return nil

	case domain.TierInvalid:
		out.Checked = true
		out.Code = CodeDomainPolicyBlocked
		out.Message = classification.Message
		return nil
	}

	// Unverified: a live fetch happens only on explicit request.
	if !opts.FetchIssuer {
		out.Checked = true
		out.Code = CodeDomainPolicyUnverified
		out.Message = fmt.Sprintf("issuer domain %s is unverified; run issuer verification or request a live fetch", issuerDomain)
		return nil
	}

	rec, err := e.issuers.Verify(ctx, issuerDomain)
	out.Checked = true
	if err != nil {
		if verr, ok := issuer.AsError(err); ok {
			out.Code = verr.Code
			out.Message = verr.Message
		} else {
			out.Code = issuer.CodeFetchFailure
			out.Message = err.Error()
		}
		return nil
	}

	out.Valid = true
	out.Method = trustlevel.MethodRemote
	out.Message = fmt.Sprintf("issuer %s verified via well-known document", issuerDomain)
	return parseIssuerDocument(rec)
}

// storedIssuerDocument loads the audit copy of the issuer document from the
// trust store for key resolution.
func (e *Engine) storedIssuerDocument(domainName string) *issuer.Document {
	rec, err := e.store.Get(domainName)
	if err != nil {
		return nil
	}
	return parseIssuerDocument(rec)
}

func parseIssuerDocument(rec *truststore.Record) *issuer.Document {
	if rec == nil || len(rec.Document) == 0 {
		return nil
	}
	var doc issuer.Document
	if err := json.Unmarshal(rec.Document, &doc); err != nil {
		return nil
	}
	return &doc
}

func signatureOutcome(res *signature.Result) trustlevel.Signature {
	if res == nil {
		return trustlevel.Signature{}
	}
	return trustlevel.Signature{Checked: true, Valid: res.Valid}
}

// Deadline bounds a caller-supplied context with the default fetch timeout
// when it has none of its own.
func Deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, issuer.DefaultTimeout+5*time.Second)
}
