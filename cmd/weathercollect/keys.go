package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"weathercollect/pkg/apikeys"
)

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys",
	Long: `Manage stored provider API keys securely.

Keys are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Environment variables follow the pattern WEATHERCOLLECT_<PROVIDER>_API_KEY,
for example WEATHERCOLLECT_VISUALCROSSING_API_KEY.`,
}

// keysSetCmd represents the keys set command
var keysSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key for a provider",
	Long: `Store an API key for a provider in the system keychain or encrypted file.

The key is read from stdin without echoing. Supported providers:
visualcrossing, openweather, qweather.`,
	Example: `  weathercollect keys set visualcrossing`,
	Args:    cobra.ExactArgs(1),
	RunE:    runKeysSet,
}

// keysListCmd represents the keys list command
var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys",
	Long:  `List stored provider API keys with the key material masked.`,
	RunE:  runKeysList,
}

// keysDeleteCmd represents the keys delete command
var keysDeleteCmd = &cobra.Command{
	Use:     "delete <provider>",
	Short:   "Remove a stored API key",
	Args:    cobra.ExactArgs(1),
	Example: `  weathercollect keys delete qweather`,
	RunE:    runKeysDelete,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}

var knownProviders = map[string]bool{
	"visualcrossing": true,
	"openweather":    true,
	"qweather":       true,
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(strings.TrimSpace(args[0]))
	if !knownProviders[provider] {
		return fmt.Errorf("unknown provider %q (expected visualcrossing, openweather or qweather)", provider)
	}

	manager, err := apikeys.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize key manager: %w", err)
	}

	if existing, _ := manager.Retrieve(provider); existing != nil {
		fmt.Printf("A key for %s already exists (%s). Replace it? (y/N): ",
			provider, apikeys.MaskKey(existing.Key))
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Printf("API key for %s (hidden as you type): ", provider)
	key, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	cred := &apikeys.Credential{
		Provider:     provider,
		Key:          key,
		LastModified: time.Now(),
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	fmt.Printf("Stored key for %s: %s\n", provider, apikeys.MaskKey(key))
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	manager, err := apikeys.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize key manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	if len(creds) == 0 {
		fmt.Println("No stored keys. Use 'weathercollect keys set <provider>' to add one.")
		return nil
	}

	fmt.Println("Stored API keys:")
	for _, cred := range creds {
		fmt.Printf("  %-16s %s  (updated %s)\n",
			cred.Provider, apikeys.MaskKey(cred.Key),
			cred.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(strings.TrimSpace(args[0]))

	manager, err := apikeys.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize key manager: %w", err)
	}

	if err := manager.Delete(provider); err != nil {
		return fmt.Errorf("failed to delete key for %s: %w", provider, err)
	}
	fmt.Printf("Removed key for %s\n", provider)
	return nil
}

// readSecret reads a line from stdin without echoing
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	// Fallback when stdin is not a terminal (pipes, CI)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
