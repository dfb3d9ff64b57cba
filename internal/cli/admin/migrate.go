package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/database"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply all pending up migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			if err := database.Migrate(cfg.DatabaseURL, source); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("source", database.DefaultMigrationsURL, "Migration source URL")

	return cmd
}
