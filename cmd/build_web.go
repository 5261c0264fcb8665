package cmd

import (
	"github.com/spf13/cobra"

	"github.com/logmark/build-tools/pkg/bootstrap"
)

var buildWebCmd = &cobra.Command{
	Use:   "build-web",
	Short: "Builds the LogMark web front-end in release mode",
	Long: `Makes sure trunk is installed (installing it through cargo if necessary)
and runs a release build. The build artifacts end up in ./dist.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.NewRunner().BuildWeb(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(buildWebCmd)
}
