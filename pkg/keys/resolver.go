package keys

import (
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/openbadgekit/badgecore/pkg/issuer"
	"github.com/openbadgekit/badgecore/pkg/keycodec"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

// EnvironmentProduction disables the local fallback key file source.
const EnvironmentProduction = "production"

// Resolver obtains a key for a domain from an ordered set of sources.
// It never fetches over the network: it operates only on data the issuer
// verification flow already obtained.
type Resolver struct {
	// Cache holds previously-seen external keys. Required.
	Cache Cache

	// OwnDomain is the service's configured public domain. The DefaultKey
	// source applies only to it.
	OwnDomain string

	// Environment gates the fallback key file ("production" disables it).
	Environment string

	// DefaultKeyPEM is an environment-provided key for the engine's own
	// domain. May be a private PKCS#8 or public SPKI PEM.
	DefaultKeyPEM string

	// FallbackKeyFile is a local PEM path used only outside production.
	FallbackKeyFile string
}

// Resolve returns key material for the issuer identified by issuerURL,
// consulting, in order: a key embedded in the issuer document, the cache,
// the environment default (own domain only), and the non-production fallback
// file. A nil key with nil error means no source yielded a key; callers
// interpret that as "cannot cryptographically verify".
func (r *Resolver) Resolve(doc *issuer.Document, issuerURL string) (*keycodec.Key, error) {
	domain := domainOf(issuerURL)

	if doc != nil {
		if key := r.embeddedKey(doc, domain); key != nil {
			if pemStr, err := key.PublicPEM(); err == nil && r.Cache != nil {
				r.Cache.Put(domain, pemStr)
			}
			return key, nil
		}
	}

	if r.Cache != nil && domain != "" {
		if pemStr, ok := r.Cache.Get(domain); ok {
			if key, err := keycodec.DecodePEM(pemStr); err == nil {
				key.Domain = domain
				return key, nil
			}
		}
	}

	if r.DefaultKeyPEM != "" && domain != "" && domain == truststore.NormalizeDomain(r.OwnDomain) {
		if key, err := keycodec.DecodePEM(r.DefaultKeyPEM); err == nil {
			key.Domain = domain
			return key, nil
		}
	}

	if r.Environment != EnvironmentProduction && r.FallbackKeyFile != "" {
		if data, err := os.ReadFile(r.FallbackKeyFile); err == nil {
			if key, err := keycodec.DecodePEM(string(data)); err == nil {
				key.Domain = domain
				return key, nil
			}
		}
	}

	return nil, nil
}

// ResolveSigningKey returns a private key for signing credentials on behalf
// of a domain: the environment default for the engine's own domain, or the
// non-production fallback file. nil means no signing key is available.
func (r *Resolver) ResolveSigningKey(domain string) (*keycodec.Key, error) {
	domain = truststore.NormalizeDomain(domain)

	if r.DefaultKeyPEM != "" && domain == truststore.NormalizeDomain(r.OwnDomain) {
		key, err := keycodec.DecodePEM(r.DefaultKeyPEM)
		if err != nil {
			return nil, err
		}
		if key.Signer() {
			key.Domain = domain
			return key, nil
		}
	}

	if r.Environment != EnvironmentProduction && r.FallbackKeyFile != "" {
		data, err := os.ReadFile(r.FallbackKeyFile)
		if err != nil {
			return nil, nil
		}
		key, err := keycodec.DecodePEM(string(data))
		if err != nil {
			return nil, err
		}
		if key.Signer() {
			key.Domain = domain
			return key, nil
		}
	}

	return nil, nil
}

// embeddedKey extracts a key carried by the issuer document itself.
// Accepted shapes: publicKey as a bare PEM string, {publicKeyPem},
// {publicKeyMultibase}, or publicKeys as a list of any of those.
func (r *Resolver) embeddedKey(doc *issuer.Document, domain string) *keycodec.Key {
	if key := decodeKeyField(doc.PublicKey, domain); key != nil {
		return key
	}

	if len(doc.PublicKeys) > 0 {
		var entries []json.RawMessage
		if err := json.Unmarshal(doc.PublicKeys, &entries); err == nil {
			for _, entry := range entries {
				if key := decodeKeyField(entry, domain); key != nil {
					return key
				}
			}
		}
	}

	return nil
}

func decodeKeyField(raw json.RawMessage, domain string) *keycodec.Key {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decodeKeyString(s, domain)
	}

	var obj struct {
		PublicKeyPem       string `json:"publicKeyPem"`
		PublicKeyMultibase string `json:"publicKeyMultibase"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if obj.PublicKeyPem != "" {
		return decodeKeyString(obj.PublicKeyPem, domain)
	}
	if obj.PublicKeyMultibase != "" {
		pub, err := keycodec.DecodeMultibase(obj.PublicKeyMultibase)
		if err != nil {
			return nil
		}
		return &keycodec.Key{Public: pub, Domain: domain, Encoding: keycodec.EncodingMultibase}
	}
	return nil
}

func decodeKeyString(s, domain string) *keycodec.Key {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "BEGIN") {
		return nil
	}
	key, err := keycodec.DecodePEM(s)
	if err != nil {
		return nil
	}
	key.Domain = domain
	return key
}

func domainOf(issuerURL string) string {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return ""
	}
	if u.Hostname() == "" {
		// A bare domain was passed instead of a URL.
		return truststore.NormalizeDomain(issuerURL)
	}
	return truststore.NormalizeDomain(u.Hostname())
}
