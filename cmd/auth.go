package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/brightlane/crm-intake/credentials"
)

var (
	authProvider string
	authAPIKey   string
)

// AuthCmd groups credential management commands.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage LLM provider credentials",
	Long: `Manage LLM provider API keys.

Keys are stored in the operating system keyring (macOS Keychain, Windows
Credential Manager, Linux Secret Service). The INTAKE_AI_API_KEY environment
variable and the ai.api_key config field take precedence over the keyring.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store an API key in the system keyring",
	Long: `Store an API key in the system keyring.

Examples:
  # Prompt for the key (not echoed)
  intake auth set-key --provider openai

  # Non-interactive
  intake auth set-key --provider anthropic --api-key sk-ant-...`,
	RunE: runAuthSetKey,
}

var authDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key",
	Short: "Remove an API key from the system keyring",
	RunE:  runAuthDeleteKey,
}

func init() {
	AuthCmd.PersistentFlags().StringVar(&authProvider, "provider", "openai", "provider name (openai, anthropic)")
	authSetKeyCmd.Flags().StringVar(&authAPIKey, "api-key", "", "API key (omit to be prompted)")
	AuthCmd.AddCommand(authSetKeyCmd)
	AuthCmd.AddCommand(authDeleteKeyCmd)
}

func runAuthSetKey(c *cobra.Command, args []string) error {
	key := authAPIKey
	if key == "" {
		var err error
		key, err = promptForKey(c)
		if err != nil {
			return err
		}
	}

	store := credentials.NewKeyringStore()
	if err := store.Set(authProvider, key); err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "API key stored for provider %q\n", authProvider)
	return nil
}

func runAuthDeleteKey(c *cobra.Command, args []string) error {
	store := credentials.NewKeyringStore()
	if err := store.Delete(authProvider); err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "API key removed for provider %q\n", authProvider)
	return nil
}

// promptForKey reads the key without echo when stdin is a terminal, falling
// back to a plain line read otherwise.
func promptForKey(c *cobra.Command) (string, error) {
	fmt.Fprintf(c.OutOrStdout(), "API key for %s: ", authProvider)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(c.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
