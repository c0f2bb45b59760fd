// Package keys resolves verification and signing keys for issuer domains
// from an ordered set of sources and caches newly-seen external keys.
package keys

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// Cache is the collaborator interface for the per-domain key cache. Entries
// are PEM strings keyed by lowercase hostname; a Put overwrites any prior
// entry, entries are never merged.
type Cache interface {
	Get(domain string) (pem string, ok bool)
	Put(domain, pem string)
}

// MemoryCache is a Cache backed by an expiring in-memory store.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates a cache whose entries expire after ttl.
// A non-positive ttl keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryCache{c: gocache.New(ttl, time.Minute)}
}

// Get returns the cached PEM for a domain.
func (m *MemoryCache) Get(domain string) (string, bool) {
	v, ok := m.c.Get(truststore.NormalizeDomain(domain))
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// Put stores the PEM for a domain, replacing any prior entry.
func (m *MemoryCache) Put(domain, pem string) {
	m.c.SetDefault(truststore.NormalizeDomain(domain), pem)
}
