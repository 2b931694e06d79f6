package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/bootstrap"
	"github.com/54b3r/raggate-go/internal/logging"
)

// NewSearchCmd constructs the `raggate search` command, which prints the
// nearest passages for a question without calling the chat model.
func NewSearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search [question]",
		Short: "Show the nearest passages for a question",
		Long: `Embed the question and print the k nearest passages with their squared
Euclidean distances. The security gate, chat model and audit trail are not
involved.

Examples:
  raggate search "boiling point of water"
  raggate search -k 5 "French capital"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			svc, err := bootstrap.Build(ctx, bootstrap.Options{Log: log, SkipGenerator: true, SkipAudit: true})
			if err != nil {
				return fmt.Errorf("search: startup failed: %w", err)
			}
			defer func() { _ = svc.Close() }()

			hits, err := svc.Retriever.RetrieveHits(ctx, strings.Join(args, " "), k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no documents indexed")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDISTANCE\tTEXT")
			for _, h := range hits {
				fmt.Fprintf(tw, "%d\t%.6f\t%s\n", h.Document.ID, h.Distance, h.Document.Text)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of passages (default: RAGGATE_TOP_K)")

	return cmd
}
