package main

import (
	"os"
	"time"

	"github.com/openbadgekit/badgecore/pkg/engine"
	"github.com/openbadgekit/badgecore/pkg/keys"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

var (
	flagOwnDomain         string
	flagTrustPath         string
	flagAllowUnregistered bool
	flagSafeTestDomains   []string
	flagEnv               string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagOwnDomain, "own-domain", os.Getenv("BADGECORE_PUBLIC_DOMAIN"), "This service's own issuer domain")
	pf.StringVar(&flagTrustPath, "trust-path", "", "Trust store directory (default ~/.badgecore/trust)")
	pf.BoolVar(&flagAllowUnregistered, "allow-unregistered", false, "Accept issuer domains that fail DNS resolution")
	pf.StringSliceVar(&flagSafeTestDomains, "safe-test-domain", nil, "Extra domains accepted without verification (repeatable)")
	pf.StringVar(&flagEnv, "env", envOr("BADGECORE_ENV", "development"), "Deployment environment (development, production)")
}

// buildEngine wires a verification engine from the global flags and the
// environment, backed by the local file trust store.
func buildEngine() (*engine.Engine, error) {
	store, err := truststore.NewFileStore(flagTrustPath)
	if err != nil {
		return nil, err
	}

	signingKey := os.Getenv("BADGECORE_SIGNING_KEY")
	if signingKey == "" {
		if path := os.Getenv("BADGECORE_SIGNING_KEY_FILE"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			signingKey = string(data)
		}
	}

	cfg := engine.Config{
		OwnDomain:         flagOwnDomain,
		SafeTestDomains:   flagSafeTestDomains,
		AllowUnregistered: flagAllowUnregistered,
		Environment:       flagEnv,
		SigningKeyPEM:     signingKey,
		FallbackKeyFile:   os.Getenv("BADGECORE_DEV_KEY_FILE"),
		Version:           version,
	}
	return engine.New(cfg, store, keys.NewMemoryCache(time.Hour), nil, nil), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
