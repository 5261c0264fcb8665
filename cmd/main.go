package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/logmark/build-tools/pkg/bootstrap"
)

var rootCmd = &cobra.Command{
	Use:   "tool",
	Short: "Build tools for LogMark",
	Long: `This command bundles the tools used to build the LogMark web front-end.
This includes the WebAssembly release build, cargo tool bootstrapping, a
dependency fetcher and a small task runner.`,
	SilenceUsage: true,
}

// Execute runs the CLI. When an install or build subprocess fails, the
// process exits with that subprocess's status.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(bootstrap.ExitCode(err))
	}
}
