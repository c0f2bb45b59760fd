// Package domain assigns a policy tier to a URL's host. The tiers let a
// deploying operator permit free experimentation on clearly-fake domains
// while forcing any domain that plausibly belongs to a real organization
// through the explicit issuer verification flow.
package domain

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// Tier is the policy classification of a host.
type Tier string

const (
	// TierVerified is the service's own configured public domain.
	TierVerified Tier = "verified"

	// TierVerifiedExternal is a host with a verified local trust record.
	TierVerifiedExternal Tier = "verified-external"

	// TierTesting is a configured safe test domain, valid with a warning.
	TierTesting Tier = "testing"

	// TierUnregistered is a host that failed DNS lookup, accepted with a
	// warning when the operator opted in.
	TierUnregistered Tier = "unregistered"

	// TierVerificationFailed is a host whose most recent issuer verification
	// failed.
	TierVerificationFailed Tier = "verification-failed"

	// TierUnverified is a resolvable host with no trust record.
	TierUnverified Tier = "unverified"

	// TierInvalid is a malformed URL.
	TierInvalid Tier = "invalid"
)

// Classification is the result of classifying one URL.
type Classification struct {
	Valid    bool     `json:"valid"`
	Tier     Tier     `json:"tier"`
	Domain   string   `json:"domain,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Resolver is the DNS lookup used for the existence probe.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DefaultSafeTestDomains are hosts (exact or dot-suffix match) treated as
// test-only when no explicit list is configured.
var DefaultSafeTestDomains = []string{"example.com", "example.org", "example.net", "localhost", "test"}

// Classifier evaluates hosts against the deployment's trust policy.
type Classifier struct {
	// OwnDomain is the service's configured public domain.
	OwnDomain string

	// SafeTestDomains are accepted without verification, with a warning.
	// Empty means DefaultSafeTestDomains.
	SafeTestDomains []string

	// AllowUnregistered accepts DNS-failing hosts as "unregistered". This is
	// an explicit operator opt-in: a lookup failure is not proof a domain
	// does not exist, so the default treats such hosts as unverified.
	AllowUnregistered bool

	// Store is consulted for existing trust records. Optional.
	Store truststore.Store

	// Resolver performs the DNS existence probe. nil means net.DefaultResolver.
	Resolver Resolver
}

// Classify assigns a policy tier to the URL's host. Identical inputs always
// yield identical tiers for a fixed policy configuration and DNS outcome.
func (c *Classifier) Classify(ctx context.Context, rawURL string) Classification {
	host, ok := hostOf(rawURL)
	if !ok {
		return Classification{
			Valid:   false,
			Tier:    TierInvalid,
			Message: fmt.Sprintf("%q is not a valid URL", rawURL),
		}
	}

	if c.OwnDomain != "" && host == truststore.NormalizeDomain(c.OwnDomain) {
		return Classification{
			Valid:   true,
			Tier:    TierVerified,
			Domain:  host,
			Message: "domain is this service's own issuer domain",
		}
	}

	rec := c.record(host)
	if rec.Verified() {
		return Classification{
			Valid:   true,
			Tier:    TierVerifiedExternal,
			Domain:  host,
			Message: fmt.Sprintf("domain has a verified trust record (%s)", rec.DisplayName),
		}
	}

	if c.safeTestDomain(host) {
		return Classification{
			Valid:    true,
			Tier:     TierTesting,
			Domain:   host,
			Warnings: []string{fmt.Sprintf("%s is a test-only domain; credentials issued here carry no real-world trust", host)},
			Message:  "domain is on the safe test list",
		}
	}

	if !c.lookupSucceeds(ctx, host) {
		if c.AllowUnregistered {
			return Classification{
				Valid:    true,
				Tier:     TierUnregistered,
				Domain:   host,
				Warnings: []string{fmt.Sprintf("%s did not resolve in DNS; ensure this is intentional", host)},
				Message:  "domain is unregistered",
			}
		}
		return Classification{
			Valid:   false,
			Tier:    TierUnverified,
			Domain:  host,
			Message: fmt.Sprintf("%s did not resolve in DNS and unregistered domains are not permitted; verify the issuer via the well-known flow", host),
		}
	}

	if rec != nil && rec.Status == truststore.StatusFailed {
		return Classification{
			Valid:   false,
			Tier:    TierVerificationFailed,
			Domain:  host,
			Message: fmt.Sprintf("issuer verification previously failed for %s: %s", host, rec.LastError),
		}
	}

	return Classification{
		Valid:   false,
		Tier:    TierUnverified,
		Domain:  host,
		Message: fmt.Sprintf("%s has no trust record; run issuer verification for this domain", host),
	}
}

func (c *Classifier) record(host string) *truststore.Record {
	if c.Store == nil {
		return nil
	}
	rec, err := c.Store.Get(host)
	if err != nil {
		return nil
	}
	return rec
}

func (c *Classifier) safeTestDomain(host string) bool {
	list := c.SafeTestDomains
	if len(list) == 0 {
		list = DefaultSafeTestDomains
	}
	for _, entry := range list {
		entry = truststore.NormalizeDomain(entry)
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func (c *Classifier) lookupSucceeds(ctx context.Context, host string) bool {
	resolver := c.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupHost(ctx, host)
	return err == nil && len(addrs) > 0
}

// hostOf extracts the lowercase hostname from a URL or bare domain.
func hostOf(rawURL string) (string, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return truststore.NormalizeDomain(u.Hostname()), true
}
