package main

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/openbadgekit/badgecore/internal/config"
	"github.com/openbadgekit/badgecore/internal/server"
	"github.com/openbadgekit/badgecore/pkg/engine"
	"github.com/openbadgekit/badgecore/pkg/keys"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification HTTP service",
	Long: `Start the HTTP API. Configuration comes from the environment
(BADGECORE_* variables); BADGECORE_PUBLIC_DOMAIN is required.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := truststore.NewFileStore(cfg.TrustDir)
		if err != nil {
			return err
		}

		eng := engine.New(engine.Config{
			OwnDomain:         cfg.PublicDomain,
			SafeTestDomains:   cfg.SafeTestDomains,
			AllowUnregistered: cfg.AllowUnregistered,
			Environment:       cfg.Env,
			SigningKeyPEM:     cfg.SigningKeyPEM,
			FallbackKeyFile:   cfg.FallbackKeyFile,
			Version:           version,
		}, store, keys.NewMemoryCache(cfg.KeyCacheTTL), nil, nil)

		handler := server.New(cfg, eng)

		log.Printf("badgecore %s listening on %s (domain: %s, env: %s)",
			version, cfg.Address, cfg.PublicDomain, cfg.Env)
		return http.ListenAndServe(cfg.Address, handler)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
