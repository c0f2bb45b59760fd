// Package main is the entry point for the badgecore CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:     "badgecore",
	Short:   "Open Badges trust and verification engine",
	Version: version,
	Long: `Verify Open Badges credentials (v2 and v3), validate issuer domains,
verify issuer well-known documents, and sign credentials with Ed25519 keys.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
