package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbadgekit/badgecore/pkg/engine"
	"github.com/openbadgekit/badgecore/pkg/truststore"
)

var issuerJSON bool

func init() {
	issuerCmd.PersistentFlags().BoolVar(&issuerJSON, "json", false, "Output results as JSON")

	issuerCmd.AddCommand(issuerVerifyCmd)
	issuerCmd.AddCommand(issuerReverifyCmd)
	issuerCmd.AddCommand(issuerListCmd)
	rootCmd.AddCommand(issuerCmd)
}

var issuerCmd = &cobra.Command{
	Use:   "issuer",
	Short: "Manage the issuer trust store",
}

var issuerVerifyCmd = &cobra.Command{
	Use:   "verify [domain]",
	Short: "Verify an issuer's well-known document and record the outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIssuerVerification(cmd, args[0], false)
	},
}

var issuerReverifyCmd = &cobra.Command{
	Use:   "reverify [domain]",
	Short: "Re-run issuer verification for a domain already on record",
	Long: `Re-run the well-known verification flow. On failure the existing
record is degraded in place rather than deleted, preserving the grant
history for audit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIssuerVerification(cmd, args[0], true)
	},
}

func runIssuerVerification(cmd *cobra.Command, domain string, reverify bool) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, cancel := engine.Deadline(cmd.Context())
	defer cancel()

	verify := eng.VerifyIssuer
	if reverify {
		verify = eng.ReverifyIssuer
	}
	rec, err := verify(ctx, domain)
	if err != nil {
		fmt.Printf("❌ Verification failed for %s: %v\n", domain, err)
		os.Exit(1)
	}

	if issuerJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rec)
	}

	fmt.Printf("✅ %s verified (%s)\n", rec.Domain, rec.DisplayName)
	fmt.Printf("Well-known: %s\n", rec.WellKnownURL)
	if len(rec.PublicKeys) > 0 {
		fmt.Printf("Public keys: %d\n", len(rec.PublicKeys))
	}
	return nil
}

var issuerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trust records",
	RunE: func(_ *cobra.Command, _ []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		records, err := eng.Store().List()
		if err != nil {
			return err
		}

		if issuerJSON {
			if records == nil {
				records = []*truststore.Record{}
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(records)
		}

		if len(records) == 0 {
			fmt.Println("No trust records.")
			return nil
		}
		for _, rec := range records {
			marker := "✅"
			if rec.Status != truststore.StatusVerified {
				marker = "❌"
			}
			fmt.Printf("%s %s  status=%s  verified=%s\n",
				marker, rec.Domain, rec.Status, rec.LastVerified.Format("2006-01-02"))
		}
		return nil
	},
}
