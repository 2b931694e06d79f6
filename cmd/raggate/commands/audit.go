package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/audit"
	"github.com/54b3r/raggate-go/internal/config"
)

// NewAuditCmd constructs the `raggate audit` command group.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the query audit trail",
	}
	cmd.AddCommand(newAuditTailCmd())
	return cmd
}

func newAuditTailCmd() *cobra.Command {
	var n int
	var fromDB bool
	var flaggedOnly bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent audit records as JSON Lines",
		Long: `Print the most recent audit records, oldest first, one JSON object per
line. Records are read from RAGGATE_AUDIT_LOG, or from the SQLite database
at RAGGATE_AUDIT_DB with --db.

Examples:
  raggate audit tail
  raggate audit tail -n 50 --flagged
  raggate audit tail --db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := config.FromEnv()
			if err != nil {
				return err
			}

			var recs []audit.Record
			if fromDB {
				if set.AuditDBPath == "" {
					return fmt.Errorf("audit: RAGGATE_AUDIT_DB is not set")
				}
				db, err := audit.OpenSQLite(set.AuditDBPath)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				if recs, err = db.Recent(cmd.Context(), n); err != nil {
					return err
				}
			} else {
				if set.AuditLogPath == "" {
					return fmt.Errorf("audit: the audit log is disabled")
				}
				if recs, err = audit.ReadFile(set.AuditLogPath, n); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range recs {
				if flaggedOnly && !rec.Flagged {
					continue
				}
				if err := enc.Encode(rec); err != nil {
					return fmt.Errorf("audit: encode: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "lines", "n", 20, "Number of records to print")
	cmd.Flags().BoolVar(&fromDB, "db", false, "Read from the SQLite audit database")
	cmd.Flags().BoolVar(&flaggedOnly, "flagged", false, "Only print rejected queries")

	return cmd
}
