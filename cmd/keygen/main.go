// keygen generates the Ed25519 manifest signing key pair in JWK format.
package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	declcrypto "github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/version"
)

// file naming convention - the server loads private.jwk from SIGNING_KEYS_DIR
// and publishes the public half at /.well-known/jwks.json
const (
	publicKeyFileName  = "public.jwk"
	privateKeyFileName = "private.jwk"
)

var (
	outputDir string
	kid       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "keygen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "JWK key generator for the declaration service",
		Long:              "Generate the Ed25519 key pair the declaration service uses to sign completion manifests, in JWK format",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new key pair",
		Long:  "Generate a new Ed25519 key pair in JWK format",
		RunE:  runGenerate,
	}

	generateCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for generated keys [required]")
	generateCmd.Flags().StringVarP(&kid, "kid", "k", "", "Key ID (default: auto-generated from thumbprint)")
	generateCmd.MarkFlagRequired("outputdir")

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// make the directory if it doesn't exist
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Println("Generating Ed25519 key pair")

	privateKey, err := declcrypto.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}

	publicKey := privateKey.Public().(ed25519.PublicKey)

	// Generate key ID from thumbprint if not provided
	keyID := kid
	if keyID == "" {
		keyID, err = declcrypto.GenerateKeyIDFromEd25519Key(publicKey)
		if err != nil {
			return fmt.Errorf("failed to generate key ID: %w", err)
		}
	}

	if err := declcrypto.SaveEd25519PublicKeyToJWKFile(publicKey, keyID, outputDir, publicKeyFileName); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	fmt.Printf("✓ Public JWK:  %s/%s (kid: %s)\n", outputDir, publicKeyFileName, keyID)

	if err := declcrypto.SaveEd25519PrivateKeyToJWKFile(privateKey, keyID, outputDir, privateKeyFileName); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	fmt.Printf("✓ Private JWK: %s/%s (kid: %s)\n", outputDir, privateKeyFileName, keyID)

	return nil
}
