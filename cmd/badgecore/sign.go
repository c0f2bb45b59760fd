package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbadgekit/badgecore/pkg/credential"
)

var (
	signDomain string
	signOut    string
)

func init() {
	signCmd.Flags().StringVar(&signDomain, "domain", "", "Signing domain (default --own-domain)")
	signCmd.Flags().StringVar(&signOut, "out", "", "Output path (default stdout)")

	rootCmd.AddCommand(signCmd)
}

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Sign a credential with the configured Ed25519 key",
	Long: `Attach an Ed25519Signature2020 proof to a credential. The signing key
comes from BADGECORE_SIGNING_KEY, BADGECORE_SIGNING_KEY_FILE, or the
non-production fallback key file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		domain := signDomain
		if domain == "" {
			domain = flagOwnDomain
		}
		if domain == "" {
			return fmt.Errorf("no signing domain: set --domain, --own-domain, or BADGECORE_PUBLIC_DOMAIN")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		doc, err := credential.Parse(data)
		if err != nil {
			return err
		}

		signed, err := eng.SignCredential(cmd.Context(), doc, domain)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(signed, "", "  ")
		if err != nil {
			return err
		}

		if signOut == "" {
			fmt.Println(string(out))
			return nil
		}
		if err := os.WriteFile(signOut, append(out, '\n'), 0644); err != nil {
			return fmt.Errorf("failed to write signed credential: %w", err)
		}
		fmt.Printf("✅ Signed credential saved to %s\n", signOut)
		return nil
	},
}
