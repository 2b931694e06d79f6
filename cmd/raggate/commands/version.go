package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggate-go/internal/version"
)

// NewVersionCmd constructs the `raggate version` subcommand. Version, commit
// and build date are injected with -ldflags.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the raggate version, git commit, and build date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
