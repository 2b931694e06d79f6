package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/config"
	"github.com/54b3r/raggate-go/internal/embedder"
	"github.com/54b3r/raggate-go/internal/index"
	"github.com/54b3r/raggate-go/internal/ingestion"
	"github.com/54b3r/raggate-go/internal/logging"
)

// NewIndexCmd constructs the `raggate index` command group.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the document index",
	}
	cmd.AddCommand(newIndexBuildCmd())
	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed the corpus and write an index snapshot",
		Long: `Embed every document in RAGGATE_DOCUMENTS and write the sealed index to a
snapshot file. 'raggate serve' loads a snapshot whose documents match the
corpus instead of re-embedding at startup.

Examples:
  raggate index build --out data/index.snap
  RAGGATE_INDEX_SNAPSHOT=data/index.snap raggate index build`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			set, err := config.FromEnv()
			if err != nil {
				return err
			}
			if out == "" {
				out = set.SnapshotPath
			}
			if out == "" {
				return fmt.Errorf("index: --out or RAGGATE_INDEX_SNAPSHOT is required")
			}

			if err := embedder.Validate(log); err != nil {
				return err
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return err
			}

			p, err := ingestion.NewPipeline(emb, emb.Dimension(), &ingestion.Config{
				BatchSize:   set.WarmupBatch,
				Concurrency: set.WarmupConcurrency,
			})
			if err != nil {
				return err
			}
			docs, err := ingestion.LoadDocuments(set.DocumentsPath, log)
			if err != nil {
				return err
			}
			flat, _, err := p.Build(ctx, docs)
			if err != nil {
				return err
			}
			if err := index.WriteSnapshot(out, flat); err != nil {
				return err
			}

			log.Info("index: snapshot written",
				slog.String("path", out),
				slog.Int("documents", flat.Size()),
				slog.Int("dim", flat.Dimension()),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents to %s\n", flat.Size(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Snapshot path (default: RAGGATE_INDEX_SNAPSHOT)")

	return cmd
}
