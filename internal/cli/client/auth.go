package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/cli"
	"github.com/cloo-solutions/copilot/internal/domain"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Login, logout, and check authentication status for the copilot CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd creates the auth login command
func AuthLoginCmd() *cobra.Command {
	var cfg GlobalConfig

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with API key",
		Long: `Store the API key and URL in the global config (~/.config/copilot/config.json).
The optional user, role and language are used by ask when its flags are omitted.`,
		Example: `  copilot auth login --key cpk_... --url https://copilot.internal
  copilot auth login --user u-1042 --role teller --lang ar`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.InOrStdin(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.APIKey, "key", "", "API key (cpk_...)")
	cmd.Flags().StringVar(&cfg.APIURL, "url", defaultAPIURL, "API URL")
	cmd.Flags().StringVar(&cfg.User, "user", "", "Default user id for ask")
	cmd.Flags().StringSliceVarP(&cfg.Roles, "role", "r", nil, "Default role for ask (repeatable)")
	cmd.Flags().StringVar(&cfg.Language, "lang", "", "Default answer language for ask (en or ar)")

	return cmd
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear credentials",
		Long:  "Remove stored credentials from the global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged out")
			return nil
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the credential source the CLI would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout(), outputJSON(cmd))
		},
	}
}

func runAuthLogin(in io.Reader, out io.Writer, cfg GlobalConfig) error {
	if cfg.APIKey == "" {
		fmt.Fprint(out, "Enter API key: ")
		input, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && input == "" {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		cfg.APIKey = strings.TrimSpace(input)
	}

	if !IsValidAPIKey(cfg.APIKey) {
		return fmt.Errorf("invalid API key format (expected: cpk_ + 64 hex characters)")
	}
	if cfg.Language != "" && !domain.IsValidLanguage(cfg.Language) {
		return fmt.Errorf("invalid language %q (expected en or ar)", cfg.Language)
	}

	if err := SaveGlobalConfig(&cfg); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(out, "Successfully logged in")
	return nil
}

func runAuthStatus(out io.Writer, asJSON bool) error {
	source, apiKey, apiURL := GetCredentialSource()

	if asJSON {
		status := map[string]any{
			"authenticated": source != SourceNone,
			"source":        string(source),
		}
		if source != SourceNone {
			status["api_key"] = maskAPIKey(apiKey)
			status["api_url"] = apiURL
		}
		return cli.PrintJSON(out, status)
	}

	if source == SourceNone {
		fmt.Fprintln(out, "Not authenticated")
		fmt.Fprintf(out, "Run 'copilot auth login' or set %s\n", envAPIKey)
		return nil
	}

	fmt.Fprintln(out, "Authenticated: yes")
	fmt.Fprintf(out, "Source: %s\n", source)
	fmt.Fprintf(out, "API Key: %s\n", maskAPIKey(apiKey))
	fmt.Fprintf(out, "API URL: %s\n", apiURL)
	return nil
}

func maskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// outputJSON reads the persistent --output flag.
func outputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}
