package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"likesync/pkg/auth"
	"likesync/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X API bearer tokens",
	Long: `Manage stored X API bearer tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - LIKESYNC_BEARER_TOKEN (read-only)

Never share your token or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Store a bearer token securely",
	Long: `Store an X API bearer token in the system keychain or an encrypted file.

The token is stored under a local account name ("default" when omitted).
'likesync run' uses the default account unless --account is given.`,
	Example: `  # Interactive login
  likesync auth login

  # Store a second token under its own name
  likesync auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Remove stored tokens",
	Long: `Remove a stored bearer token.

If no account is given, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with masked tokens.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := auth.DefaultAccount
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowTokenGuide(os.Stdout)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its token? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	var token string
	for {
		fmt.Print("Bearer token (hidden): ")
		token, err = readSecret(reader)
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		if len(token) >= 20 && !strings.ContainsAny(token, " \t") {
			break
		}

		ui.PrintWarning("That doesn't look like a bearer token", "expected one long string without spaces")
		fmt.Print("Try again? (Y/n): ")
		retry, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(retry)) == "n" {
			return fmt.Errorf("no token entered")
		}
	}

	account := &auth.Account{Name: name, BearerToken: token}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Token saved for account '%s' (%s)", name, auth.MaskToken(token)))
	if name != auth.DefaultAccount {
		fmt.Printf("\nUse it with:\n  likesync run --account %s\n", name)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		ui.PrintSuccess("Account removed: " + args[0])
		return nil
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No stored accounts found", "")
		return nil
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Printf("  %d. Remove all accounts\n", len(accounts)+1)
	fmt.Printf("  0. Cancel\n\n")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	switch {
	case choice == 0:
		return nil
	case choice == len(accounts)+1:
		fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
		confirm, _ := reader.ReadString('\n')
		if strings.TrimSpace(confirm) != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove all accounts: %w", err)
		}
		ui.PrintSuccess("All accounts removed")
	case choice > 0 && choice <= len(accounts):
		name := accounts[choice-1].Name
		if err := manager.Delete(name); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		ui.PrintSuccess("Account removed: " + name)
	default:
		return fmt.Errorf("invalid choice %q", strings.TrimSpace(input))
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'likesync auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()
	for i, account := range accounts {
		fmt.Printf("%d. %s (%s)\n", i+1, account.Name, account.Source)
		fmt.Printf("   Token: %s\n", account.MaskedToken)
		fmt.Printf("   Last Modified: %s\n", account.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

// readSecret reads a line from stdin without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
