// declare is a CLI client for the declaration service. It can create
// envelopes, inspect their status, resolve link tokens, and verify completed
// declaration artifacts offline against the service's published signing key.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/markmyw0rd/digital-declaration101/internal/artifact"
	declcrypto "github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/version"
)

var (
	serverURL string
	linkToken string

	unitCode        string
	unitName        string
	studentEmail    string
	studentName     string
	supervisorEmail string
	assessorEmail   string

	artifactPath string
	manifestPath string
	keyPath      string
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func main() {
	rootCmd := &cobra.Command{
		Use:               "declare",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Client for the digital declaration service",
		Long:              "declare creates declaration envelopes, inspects their status and verifies completed declaration artifacts",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Base URL of the declaration service")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new declaration envelope",
		Long:  "Create a new envelope awaiting the student's signature and print the student's signing link",
		RunE:  runCreate,
	}
	createCmd.Flags().StringVarP(&unitCode, "unit", "u", "", "Unit of competency code (e.g., BSBWHS332X) [required]")
	createCmd.Flags().StringVar(&unitName, "unit-name", "", "Unit of competency name")
	createCmd.Flags().StringVar(&studentEmail, "student-email", "", "Student email address [required]")
	createCmd.Flags().StringVar(&studentName, "student-name", "", "Student name")
	createCmd.Flags().StringVar(&supervisorEmail, "supervisor-email", "", "Supervisor email address")
	createCmd.Flags().StringVar(&assessorEmail, "assessor-email", "", "Assessor email address")
	createCmd.MarkFlagRequired("unit")
	createCmd.MarkFlagRequired("student-email")

	statusCmd := &cobra.Command{
		Use:   "status [envelope-id]",
		Short: "Show an envelope's status",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVarP(&linkToken, "token", "t", "", "Link token for the envelope [required]")
	statusCmd.MarkFlagRequired("token")

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Resolve a link token",
		Long:  "Report which envelope and role a link token identifies and whether that role is currently expected to act",
		RunE:  runWhoami,
	}
	whoamiCmd.Flags().StringVarP(&linkToken, "token", "t", "", "Link token to resolve [required]")
	whoamiCmd.MarkFlagRequired("token")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a completed declaration artifact",
		Long:  "Recompute the artifact's canonical content hash and check it against the signed completion manifest",
		RunE:  runVerify,
	}
	verifyCmd.Flags().StringVarP(&artifactPath, "artifact", "a", "", "Path to the declaration artifact JSON [required]")
	verifyCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to a file containing the completion manifest JWS [required]")
	verifyCmd.Flags().StringVarP(&keyPath, "key", "k", "", "Path to the service's public JWK file [required]")
	verifyCmd.MarkFlagRequired("artifact")
	verifyCmd.MarkFlagRequired("manifest")
	verifyCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(createCmd, statusCmd, whoamiCmd, verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCreate(cmd *cobra.Command, args []string) error {
	payload := map[string]string{
		"unitCode":        unitCode,
		"unitName":        unitName,
		"studentEmail":    studentEmail,
		"studentName":     studentName,
		"supervisorEmail": supervisorEmail,
		"assessorEmail":   assessorEmail,
	}

	var result struct {
		Envelope struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"envelope"`
		NextLink string `json:"nextLink"`
	}
	if err := postJSON("/api/envelopes", "", payload, &result); err != nil {
		return err
	}

	fmt.Printf("Envelope created: %s (%s)\n", result.Envelope.ID, result.Envelope.Status)
	fmt.Printf("Student signing link: %s\n", result.NextLink)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/envelopes/"+args[0], nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+linkToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	var identity struct {
		EnvelopeID string `json:"envelopeId"`
		Role       string `json:"role"`
		Status     string `json:"status"`
		Current    bool   `json:"current"`
	}
	if err := postJSON("/api/whoami", "", map[string]string{"token": linkToken}, &identity); err != nil {
		return err
	}

	fmt.Printf("Envelope: %s\n", identity.EnvelopeID)
	fmt.Printf("Role:     %s\n", identity.Role)
	fmt.Printf("Status:   %s\n", identity.Status)
	if identity.Current {
		fmt.Println("This role is currently expected to act.")
	} else {
		fmt.Println("This role is NOT currently expected to act (link is stale or the turn has passed).")
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	manifestJWS := strings.TrimSpace(string(manifestBytes))

	publicKey, keyID, err := declcrypto.ReadEd25519PublicKeyFromJWKFile(
		filepath.Dir(keyPath), filepath.Base(keyPath))
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}

	header, err := declcrypto.ParseHeader(manifestJWS)
	if err != nil {
		return fmt.Errorf("failed to parse manifest header: %w", err)
	}
	if header.KeyID != keyID {
		return fmt.Errorf("manifest was signed with key %s, but the supplied key is %s", header.KeyID, keyID)
	}

	manifest, err := artifact.VerifyManifest(manifestJWS, publicKey)
	if err != nil {
		return fmt.Errorf("manifest verification failed: %w", err)
	}
	fmt.Printf("✓ Manifest signature valid (kid: %s)\n", keyID)

	// The artifact is stored in canonical form, so the file bytes hash
	// directly. A copy that went through JSON tooling may be re-encoded;
	// compare on the canonical form before declaring a mismatch.
	ok, err := declcrypto.VerifyFileChecksum(artifactPath, manifest.ContentHash)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if !ok {
		content, err := os.ReadFile(artifactPath)
		if err != nil {
			return fmt.Errorf("failed to read artifact: %w", err)
		}
		canonical, err := declcrypto.CanonicalizeJSON(content)
		if err != nil {
			return fmt.Errorf("failed to canonicalize artifact: %w", err)
		}
		if !declcrypto.VerifyChecksum(canonical, manifest.ContentHash) {
			return fmt.Errorf("content hash mismatch:\n  artifact: %s\n  manifest: %s",
				declcrypto.CalculateSHA256Hex(canonical), manifest.ContentHash)
		}
	}
	fmt.Printf("✓ Content hash matches: %s\n", manifest.ContentHash)
	fmt.Printf("✓ Declaration %s for unit %s, outcome %s, completed %s\n",
		manifest.EnvelopeID, manifest.UnitCode, manifest.Outcome, manifest.CompletedAt)
	return nil
}

func postJSON(path, token string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(serverURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	return json.Unmarshal(respBody, result)
}
