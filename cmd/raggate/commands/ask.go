package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/bootstrap"
	"github.com/54b3r/raggate-go/internal/logging"
	"github.com/54b3r/raggate-go/internal/pipeline"
)

// NewAskCmd constructs the `raggate ask` command, which runs one question
// through the full pipeline and prints the answer.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question through the gate, retriever and chat model",
		Long: `Answer one question exactly as POST /api/v1/query would. The question is
checked by the security gate, answered from the nearest passages and
recorded in the audit trail.

Examples:
  raggate ask "At what temperature does water boil?"
  raggate ask --json "What is the capital of France?"
  MODEL_PROVIDER=echo raggate ask "Who wrote Hamlet?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("ask: question must not be empty")
			}

			svc, err := bootstrap.Build(ctx, bootstrap.Options{Log: log})
			if err != nil {
				return fmt.Errorf("ask: startup failed: %w", err)
			}
			defer func() { _ = svc.Close() }()

			ans, err := svc.Pipeline.Ask(ctx, pipeline.Query{Question: question, Origin: "cli"})
			if err != nil {
				var rejected *pipeline.RejectedError
				if errors.As(err, &rejected) {
					return fmt.Errorf("query flagged for security reasons: %s", rejected.Error())
				}
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ans)
			}
			fmt.Fprintln(out, ans.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full answer record as JSON")

	return cmd
}
