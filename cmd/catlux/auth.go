package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"catlux/pkg/auth"
	"catlux/pkg/catlux"
	"catlux/pkg/logger"
	"catlux/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage CatLux credentials",
	Long: `Manage stored CatLux credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file in the catlux config directory
  - CATLUX_USERNAME and CATLUX_PASSWORD (read only)

Passwords are never written to the config file.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store CatLux credentials",
	Long: `Store a CatLux username and password. The password is read without
echo. With --verify the credentials are tried against the site first and only
stored when the login succeeds.`,
	Example: `  # Interactive login
  catlux auth login

  # Store and check against the site
  catlux auth login anna@example.com --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored CatLux credentials. Without a username the default
account is removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var verifyLogin bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&verifyLogin, "verify", false, "log in to the site before storing")
}

func newCredentialManager() (*auth.Manager, error) {
	dir, err := auth.ConfigDir()
	if err != nil {
		return nil, err
	}
	manager, err := auth.NewManager(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	return manager, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	reader := bufio.NewReader(cmd.InOrStdin())

	var username string
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
	}
	if username == "" {
		fmt.Fprint(cmd.OutOrStdout(), "CatLux username: ")
		input, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(input)
	}
	if username == "" {
		return errors.New("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		if !printer.Confirm(reader, fmt.Sprintf("Account '%s' already exists. Update the password?", username)) {
			return nil
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	password, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return errors.New("password is required")
	}

	if verifyLogin {
		if err := verifyAccount(cmd, username, password); err != nil {
			return err
		}
		printer.Success("Login accepted by the site")
	}

	account := &auth.Account{Username: username, Password: password, LastModified: time.Now()}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	printer.Success("Account saved: " + username)
	printer.Dim("Start downloading with: catlux download <category-url>")
	return nil
}

// verifyAccount logs in once with the configured site settings
func verifyAccount(cmd *cobra.Command, username, password string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := catlux.NewClientFromConfig(cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	if err := client.Login(cmd.Context(), username, password); err != nil {
		return fmt.Errorf("login failed, credentials not stored: %w", err)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		account, err := manager.RetrieveDefault()
		if err != nil {
			return fmt.Errorf("no stored account found: %w", err)
		}
		username = account.Username
	}

	if err := manager.Delete(username); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.NewPrinter(cmd.OutOrStdout()).Success("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if len(accounts) == 0 {
		printer.Info("No stored accounts", "Use 'catlux auth login' to add an account")
		return nil
	}

	printer.Highlight("Stored Accounts")
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		printer.Info(fmt.Sprintf("%d. %s", i+1, sanitized.Username), sanitized.Password)
		if !sanitized.LastModified.IsZero() {
			printer.Dim("   Last modified: " + sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

// readPassword reads a password without echo when stdin is a terminal
func readPassword(fallback *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	input, err := fallback.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
