// Package commands defines all Cobra CLI commands for the raggate binary.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/audit"
	"github.com/54b3r/raggate-go/internal/config"
	"github.com/54b3r/raggate-go/internal/logging"
)

var (
	// configPath holds the --config flag value for YAML config file override.
	configPath string
	// envPath holds the --env-file flag value.
	envPath string
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raggate",
		Short: "Retrieval-augmented question answering behind a security gate",
		Long: `raggate answers questions from a document corpus. Every question passes a
prompt-injection gate first; accepted questions retrieve the nearest
passages from an exact vector index and a chat model phrases the answer.
Every processed question is written to the audit trail.

Configuration comes from environment variables, optionally seeded from a
.env file and a YAML config file (~/.raggate/config.yaml). Environment
variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.NewWithWriter(os.Stderr)
			slog.SetDefault(log)

			if _, err := config.LoadDotEnv(envPath); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)
			audit.LogCommandStart(ctx, log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.raggate/config.yaml)")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "Path to a .env file; missing files are ignored")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewSearchCmd(),
		NewCheckCmd(),
		NewAuditCmd(),
		NewIndexCmd(),
		NewVersionCmd(),
	)

	return root
}
