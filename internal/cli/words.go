package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/memtest/internal/experiment"
)

// NewWordsCommand creates the command that validates and prints the experiment protocol.
func NewWordsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "words",
		Short: "Validate the experiment protocol and print its word list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rootOpts.protocol()
			if err != nil {
				return err
			}
			printProtocol(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func printProtocol(w io.Writer, p *experiment.Protocol) {
	fmt.Fprintf(w, "memorization: %s\n", p.MemorizationDeadline)
	fmt.Fprintf(w, "recall:       %s\n", p.RecallDeadline)
	fmt.Fprintf(w, "early finish: %t\n", p.AllowEarlyFinish)
	fmt.Fprintf(w, "music:        %s\n", p.MusicFile)
	fmt.Fprintf(w, "id pattern:   %s\n", p.IDPattern)

	words := p.WordList().Display()
	fmt.Fprintf(w, "words (%d):\n", len(words))
	for i, word := range words {
		fmt.Fprintf(w, "%3d. %s\n", i+1, word)
	}
}
