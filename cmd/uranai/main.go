package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// defaultConfigPath is the config file every command reads unless --config
// says otherwise.
const defaultConfigPath = "uranai.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "uranai",
		Short:        "Uranai: daily tarot and instinct diagnosis",
		Long:         "Uranai runs the daily tarot draw and the one-time instinct diagnosis, over HTTP or from the terminal.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTarotCmd())
	cmd.AddCommand(newDiagnosisCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uranai %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
