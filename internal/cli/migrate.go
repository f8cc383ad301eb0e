package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/database"
)

// NewMigrateCommand creates the command that applies the database schema.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the participant tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			// Connect applies the schema
			db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			rootOpts.Logger.Info("schema up to date", zap.String("driver", cfg.DatabaseDriver))
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", cfg.DatabaseDriver)
			return nil
		},
	}
}
