package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbadgekit/badgecore/pkg/engine"
)

var domainJSON bool

func init() {
	domainValidateCmd.Flags().BoolVar(&domainJSON, "json", false, "Output the result as JSON")

	domainCmd.AddCommand(domainValidateCmd)
	rootCmd.AddCommand(domainCmd)
}

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Classify issuer domains under the deployment policy",
}

var domainValidateCmd = &cobra.Command{
	Use:   "validate [url-or-domain]",
	Short: "Classify a URL's domain into a trust tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		ctx, cancel := engine.Deadline(cmd.Context())
		defer cancel()
		result := eng.ValidateDomain(ctx, args[0])

		if domainJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		}

		if result.Valid {
			fmt.Printf("✅ %s: %s\n", result.Domain, result.Tier)
		} else {
			fmt.Printf("❌ %s: %s\n", result.Domain, result.Tier)
		}
		if result.Message != "" {
			fmt.Println(result.Message)
		}
		for _, w := range result.Warnings {
			fmt.Printf("  ⚠️  %s\n", w)
		}
		if !result.Valid {
			os.Exit(1)
		}
		return nil
	},
}
