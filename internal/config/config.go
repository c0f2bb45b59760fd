// Package config loads environment-driven settings for the badgecore
// service. In development, .env files supplement the environment; OS
// variables always take precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// godotenv.Load never overrides already-set variables, preserving
	// OS env > .env precedence.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the service.
type Config struct {
	Env               string        // Deployment environment (development, production)
	Address           string        // HTTP server address (e.g. ":8080")
	PublicDomain      string        // The service's own issuer domain
	SafeTestDomains   []string      // Domains accepted without verification
	AllowUnregistered bool          // Accept DNS-failing domains (operator opt-in)
	TrustDir          string        // Trust store directory ("" selects the default)
	SigningKeyPEM     string        // Ed25519 signing key for PublicDomain
	FallbackKeyFile   string        // Non-production local key path
	KeyCacheTTL       time.Duration // Lifetime of cached external keys

	IssuerName  string // Name published in the own well-known document
	IssuerURL   string // Homepage published in the own well-known document
	IssuerEmail string // Contact published in the own well-known document
}

const (
	defaultAddress     = ":8080"
	defaultEnv         = "development"
	defaultKeyCacheTTL = time.Hour
)

// Load reads environment variables and produces a Config suitable for
// wiring the service. BADGECORE_PUBLIC_DOMAIN is required.
func Load() (Config, error) {
	cfg := Config{
		Env:               envOr("BADGECORE_ENV", defaultEnv),
		Address:           envOr("BADGECORE_ADDRESS", defaultAddress),
		PublicDomain:      os.Getenv("BADGECORE_PUBLIC_DOMAIN"),
		AllowUnregistered: envBool("BADGECORE_ALLOW_UNREGISTERED"),
		TrustDir:          os.Getenv("BADGECORE_TRUST_PATH"),
		FallbackKeyFile:   os.Getenv("BADGECORE_DEV_KEY_FILE"),
		KeyCacheTTL:       defaultKeyCacheTTL,
		IssuerName:        os.Getenv("BADGECORE_ISSUER_NAME"),
		IssuerURL:         os.Getenv("BADGECORE_ISSUER_URL"),
		IssuerEmail:       os.Getenv("BADGECORE_ISSUER_EMAIL"),
	}

	if cfg.PublicDomain == "" {
		return Config{}, fmt.Errorf("BADGECORE_PUBLIC_DOMAIN is required")
	}

	if v := os.Getenv("BADGECORE_SAFE_TEST_DOMAINS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.SafeTestDomains = append(cfg.SafeTestDomains, d)
			}
		}
	}

	if v := os.Getenv("BADGECORE_KEY_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BADGECORE_KEY_CACHE_TTL: %w", err)
		}
		cfg.KeyCacheTTL = ttl
	}

	// The signing key can be supplied inline or via a file path; the file
	// form keeps key material out of process listings.
	if v := os.Getenv("BADGECORE_SIGNING_KEY"); v != "" {
		cfg.SigningKeyPEM = v
	} else if path := os.Getenv("BADGECORE_SIGNING_KEY_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read BADGECORE_SIGNING_KEY_FILE: %w", err)
		}
		cfg.SigningKeyPEM = string(data)
	}

	return cfg, nil
}

// Production reports whether the deployment environment is production.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
