package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.2.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version information for wordlistctl",
		Run:   runVersion,
	}

	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "wordlistctl version %s\n", Version)
	_, _ = fmt.Fprintf(out, "Build date: %s\n", BuildDate)
	_, _ = fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
}
