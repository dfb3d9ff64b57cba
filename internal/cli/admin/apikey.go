package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/repository"
	"github.com/cloo-solutions/copilot/internal/service"
)

const timeLayout = "2006-01-02 15:04:05"

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke the API keys service callers authenticate with",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

// withAuthService opens the database and runs fn against an AuthService.
func withAuthService(fn func(ctx context.Context, svc *service.AuthService) error) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, service.NewAuthService(repository.NewAPIKeyRepository(pool), nil))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create a new API key with the given roles. The token is printed once.",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().StringSliceP("role", "r", nil, "Role granted to the key (repeatable, e.g. --role auditor)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	roles, _ := cmd.Flags().GetStringSlice("role")
	outputFormat, _ := cmd.Flags().GetString("output")

	return withAuthService(func(ctx context.Context, svc *service.AuthService) error {
		token, key, err := svc.CreateAPIKey(ctx, name, roles)
		if err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(map[string]any{
				"id":    key.ID,
				"name":  key.Name,
				"roles": key.Roles,
				"token": token,
			})
		}

		fmt.Printf("Key ID: %s\n", key.ID)
		fmt.Printf("Key Name: %s\n", key.Name)
		fmt.Printf("Roles: %s\n", formatRoles(key.Roles))
		fmt.Printf("Token: %s\n", token)
		fmt.Println("\nSave this token now. You won't be able to see it again!")
		return nil
	})
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Long:  "List all API keys, newest first",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")

	return withAuthService(func(ctx context.Context, svc *service.AuthService) error {
		keys, err := svc.ListAPIKeys(ctx)
		if err != nil {
			return fmt.Errorf("failed to list API keys: %w", err)
		}

		if outputFormat == "json" {
			items := make([]map[string]any, len(keys))
			for i, key := range keys {
				items[i] = map[string]any{
					"id":           key.ID,
					"name":         key.Name,
					"roles":        key.Roles,
					"created_at":   key.CreatedAt,
					"revoked_at":   key.RevokedAt,
					"last_used_at": key.LastUsedAt,
					"revoked":      key.IsRevoked(),
				}
			}
			return printJSON(map[string]any{"items": items})
		}

		if len(keys) == 0 {
			fmt.Println("No API keys found")
			return nil
		}
		for _, key := range keys {
			status := "active"
			if key.IsRevoked() {
				status = "revoked"
			}
			lastUsed := "never"
			if key.LastUsedAt != nil {
				lastUsed = key.LastUsedAt.Format(timeLayout)
			}
			fmt.Printf("  %s: %s [%s] (%s, created: %s, last used: %s)\n",
				key.ID, key.Name, formatRoles(key.Roles), status, key.CreatedAt.Format(timeLayout), lastUsed)
		}
		return nil
	})
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key by its ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	keyID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	return withAuthService(func(ctx context.Context, svc *service.AuthService) error {
		if err := svc.RevokeAPIKey(ctx, keyID); err != nil {
			return fmt.Errorf("failed to revoke API key: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(map[string]any{
				"id":      keyID,
				"revoked": true,
				"message": "API key revoked successfully",
			})
		}
		fmt.Printf("API key %s revoked successfully\n", keyID)
		return nil
	})
}

func formatRoles(roles []string) string {
	if len(roles) == 0 {
		return "no roles"
	}
	return strings.Join(roles, ", ")
}
