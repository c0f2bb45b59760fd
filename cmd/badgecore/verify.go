package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openbadgekit/badgecore/pkg/engine"
)

var (
	verifyJSON        bool
	verifyFetchIssuer bool
)

func init() {
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output the result as JSON")
	verifyCmd.Flags().BoolVar(&verifyFetchIssuer, "fetch-issuer", false, "Allow a live well-known fetch for unverified issuer domains")

	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file-or-url]",
	Short: "Verify an Open Badges credential",
	Long: `Verify a credential from a local file or URL. Validates structure,
checks the issuer against the trust store and domain policy, and verifies
the Ed25519 proof when one is present.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		input := args[0]
		var in engine.Input
		if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
			in.URL = input
		} else {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			in.JSON = data
		}

		ctx, cancel := engine.Deadline(cmd.Context())
		defer cancel()

		result, err := eng.VerifyCredential(ctx, in, engine.Options{FetchIssuer: verifyFetchIssuer})
		if err != nil {
			return err
		}

		if verifyJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return err
			}
			if !result.Valid {
				os.Exit(1)
			}
			return nil
		}

		printVerification(result)
		if !result.Valid {
			os.Exit(1)
		}
		return nil
	},
}

func printVerification(result *engine.VerificationResult) {
	if result.Valid {
		fmt.Println("✅ CREDENTIAL VERIFIED")
	} else {
		fmt.Println("❌ CREDENTIAL NOT VERIFIED")
	}
	fmt.Printf("Trust level: %s\n", result.TrustLevel)
	fmt.Printf("Version: %s\n", result.Structure.Version)

	if !result.Structure.Valid {
		fmt.Println("\nStructure errors:")
		for _, issue := range result.Structure.Errors {
			fmt.Printf("  ❌ [%s] %s\n", issue.Code, issue.Message)
		}
	}
	for _, issue := range result.Structure.Warnings {
		fmt.Printf("  ⚠️  [%s] %s\n", issue.Code, issue.Message)
	}

	if result.Issuer.Checked {
		if result.Issuer.Valid {
			fmt.Printf("Issuer: ✅ %s (%s)\n", result.Issuer.Domain, result.Issuer.Method)
		} else {
			fmt.Printf("Issuer: ❌ %s: %s\n", result.Issuer.Code, result.Issuer.Message)
		}
	} else if result.Issuer.Message != "" {
		fmt.Printf("Issuer: not checked (%s)\n", result.Issuer.Message)
	}

	if result.Signature != nil {
		if result.Signature.Valid {
			fmt.Println("Signature: ✅ valid")
		} else {
			fmt.Printf("Signature: ❌ %s\n", result.Signature.Reason)
		}
	}
}
