package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/memtest/internal/database"
)

// NewStatsCommand creates the command that prints per-condition results.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize recall results per condition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := database.NewStatisticsRepository(db).ByCondition(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONDITION\tPARTICIPANTS\tCOMPLETED\tAVG WORDS\tFORCED MEM\tFORCED RECALL")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%d\t%d\n",
					s.Condition, s.Participants, s.Completed, s.AvgGuessedWords, s.ForcedMemorization, s.ForcedRecall)
			}
			return w.Flush()
		},
	}
}
