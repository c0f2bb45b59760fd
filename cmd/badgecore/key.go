package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbadgekit/badgecore/pkg/keycodec"
)

var (
	keyOutPrivate string
	keyOutPublic  string
	keyShowJWK    bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage signing keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new Ed25519 key pair",
	Long: `Generate an Ed25519 key pair for credential signing.

Outputs:
  - Private key in PKCS#8 PEM (point BADGECORE_SIGNING_KEY_FILE at it)
  - Public key in SPKI PEM (publish as publicKeyPem in the issuer document)
  - Multibase form of the public key (publish as publicKeyMultibase)`,
	Example: `  # Generate keys with default names
  badgecore key gen

  # Generate keys at custom paths and show the public JWK
  badgecore key gen --out-priv issuer.key.pem --out-pub issuer.pub.pem --show-jwk`,
	RunE: func(_ *cobra.Command, _ []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		privPEM, err := keycodec.EncodePrivatePEM(priv)
		if err != nil {
			return err
		}
		if err := os.WriteFile(keyOutPrivate, []byte(privPEM), 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		fmt.Printf("✅ Private key saved to %s\n", keyOutPrivate)

		pubPEM, err := keycodec.EncodePublicPEM(pub)
		if err != nil {
			return err
		}
		if err := os.WriteFile(keyOutPublic, []byte(pubPEM), 0644); err != nil {
			return fmt.Errorf("failed to write public key: %w", err)
		}
		fmt.Printf("✅ Public key saved to %s\n", keyOutPublic)

		multibase, err := keycodec.EncodeMultibase(pub)
		if err != nil {
			return err
		}
		fmt.Printf("🔑 publicKeyMultibase: %s\n", multibase)

		if keyShowJWK {
			jwk := keycodec.PublicJWK(pub, multibase)
			out, err := json.MarshalIndent(jwk, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)

	keyGenCmd.Flags().StringVar(&keyOutPrivate, "out-priv", "private.pem", "Output path for the private key")
	keyGenCmd.Flags().StringVar(&keyOutPublic, "out-pub", "public.pem", "Output path for the public key")
	keyGenCmd.Flags().BoolVar(&keyShowJWK, "show-jwk", false, "Also print the public key as a JWK")
}
