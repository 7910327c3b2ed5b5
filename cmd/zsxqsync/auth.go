package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zsxqsync/pkg/auth"
)

var (
	loginToken     string
	loginUserAgent string
	credentialsDir string
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored zsxq sessions",
	Long: `Manage stored zsxq access tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - ZSXQSYNC_ACCESS_TOKEN environment variable (read-only)

A stored token is sent as the zsxq_access_token cookie when the
configuration carries no Cookie header.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store an access token",
	Long: `Store a zsxq access token under a name (default "default").

Copy the value of the zsxq_access_token cookie from a logged-in browser
session. The token is read without echo when not given with --token.`,
	Example: `  zsxqsync auth login
  zsxqsync auth login work --user-agent "Mozilla/5.0 ..."`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <name>",
	Short: "Remove a stored access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	authCmd.PersistentFlags().StringVar(&credentialsDir, "credentials-dir", "", "directory of the encrypted credentials file (default per-user config dir)")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "access token (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginUserAgent, "user-agent", "", "user agent to send with this token")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager(credentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	token := loginToken
	if token == "" {
		fmt.Fprint(cmd.OutOrStdout(), "zsxq_access_token: ")
		token, err = readSecret(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}

	account := &auth.Account{
		Name:        name,
		AccessToken: token,
		UserAgent:   loginUserAgent,
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored account %s (%s)\n", name, auth.SanitizeAccount(account).AccessToken)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager(credentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(args[0]); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("no stored account named %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager(credentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	renderAccounts(cmd.OutOrStdout(), accounts)
	return nil
}

func renderAccounts(out io.Writer, accounts []*auth.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No stored accounts. Use 'zsxqsync auth login' to add one.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Token", "User Agent", "Last Modified"})
	for _, a := range accounts {
		s := auth.SanitizeAccount(a)
		t.AppendRow(table.Row{s.Name, s.AccessToken, s.UserAgent, s.LastModified.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}

// readSecret reads a line without echo when in is a terminal
func readSecret(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
