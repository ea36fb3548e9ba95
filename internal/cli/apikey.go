package cli

import (
	"bufio"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sitewardhq/siteward/internal/config"
	"github.com/sitewardhq/siteward/internal/middleware"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage the service API key",
	Long: `Manage the API key that protects the site and domain routes.

Only the SHA-256 hash of the key is stored. The key itself is printed
exactly once at generation time and cannot be recovered afterwards.`,
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate [--force]",
	Short: "Generate a new API key",
	Long: `Generate a new API key and store its hash in the config file.

The key is printed once. Replacing an existing key revokes the old one
immediately; use --force to skip the confirmation prompt.

Example:
  siteward apikey generate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return runAPIKeyGenerate(force)
	},
}

var apikeySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the hash of an existing API key",
	Long: `Read an API key from the terminal without echoing it and store its
hash in the config file.

Useful when the key is managed elsewhere and only the hash should live
on this host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIKeySet()
	},
}

var apikeyVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a key against the configured hash",
	Long: `Read an API key from the terminal and report whether it matches the
configured hash.

Useful for debugging 401 responses from the management API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIKeyVerify()
	},
}

func runAPIKeyGenerate(force bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.APIKeyHash != "" && !force {
		fmt.Print("An API key is already configured. Replacing it revokes the old key. Continue? (yes/no): ")
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if response != "yes" && response != "y" {
			fmt.Println("Generation cancelled")
			return nil
		}
	}

	key, err := newAPIKey()
	if err != nil {
		return err
	}

	path, err := config.SaveAPIKeyHash(middleware.HashAPIKey(key))
	if err != nil {
		return err
	}

	fmt.Println("\n✓ API key generated")
	fmt.Println()
	fmt.Printf("  %s\n", key)
	fmt.Println()
	fmt.Println("Store it now: only the SHA-256 hash was saved and the key cannot be recovered.")
	fmt.Printf("Hash written to %s\n", path)

	return nil
}

func runAPIKeySet() error {
	key, err := readAPIKey("API key: ")
	if err != nil {
		return err
	}

	if !strings.HasPrefix(key, middleware.KeyPrefix) {
		return fmt.Errorf("API key must start with '%s'", middleware.KeyPrefix)
	}

	path, err := config.SaveAPIKeyHash(middleware.HashAPIKey(key))
	if err != nil {
		return err
	}

	fmt.Printf("✓ API key hash written to %s\n", path)
	return nil
}

func runAPIKeyVerify() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.APIKeyHash == "" {
		return fmt.Errorf("no API key is configured")
	}

	key, err := readAPIKey("API key: ")
	if err != nil {
		return err
	}

	digest := middleware.HashAPIKey(key)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(cfg.APIKeyHash)) == 1 {
		fmt.Println("✓ API key matches the configured hash")
	} else {
		fmt.Println("✗ API key does not match the configured hash")
	}

	return nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return middleware.KeyPrefix + hex.EncodeToString(buf), nil
}

// readAPIKey reads a key from stdin without echoing
func readAPIKey(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func init() {
	// Add flags
	apikeyGenerateCmd.Flags().BoolP("force", "f", false, "Skip confirmation prompt")

	// Add subcommands
	apikeyCmd.AddCommand(apikeyGenerateCmd)
	apikeyCmd.AddCommand(apikeySetCmd)
	apikeyCmd.AddCommand(apikeyVerifyCmd)

	// Register with root command
	RootCmd.AddCommand(apikeyCmd)
}
