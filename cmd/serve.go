package cmd

import (
	"github.com/spf13/cobra"

	"github.com/logmark/build-tools/pkg/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the web front-end locally with trunk's dev server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.NewRunner().ServeWeb(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
