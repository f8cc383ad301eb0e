package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/database"
	"github.com/example/memtest/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	Format string
	Output string
}

// NewExportCommand creates the command that writes all participant records to a file.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export participant records as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(opts.Format)
			if err != nil {
				return err
			}
			output := opts.Output
			if output == "" {
				output = "participants." + string(format)
			}

			cfg := rootOpts.Config
			db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := database.NewParticipantRepository(db).List(cmd.Context())
			if err != nil {
				return err
			}
			if err := export.WriteFile(output, format, records); err != nil {
				return err
			}

			rootOpts.Logger.Info("participants exported", zap.Int("count", len(records)), zap.String("file", output))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d participant(s) to %s\n", len(records), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "csv", "output format (csv|xlsx)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default participants.<format>)")

	return cmd
}
