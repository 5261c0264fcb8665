package cmd

import (
	"github.com/spf13/cobra"

	"github.com/logmark/build-tools/pkg"
	"github.com/logmark/build-tools/pkg/fetch"
)

var fetchDepsCmd = &cobra.Command{
	Use:   "fetch-deps",
	Short: "Downloads and unpacks prebuilt dependencies",
	Long: `Downloads and unpacks the dependencies listed in DEPS.yml (currently the
binaryen tools for wasm-opt). Already downloaded dependencies are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		root, err := pkg.GetProjectRoot()
		if err != nil {
			return err
		}

		pkg.PrintTask("Downloading dependencies")
		err = fetch.Run(cmd.Context(), root, fetch.Options{Update: update})
		if err != nil {
			return err
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	fetchDepsCmd.Flags().BoolP("update", "u", false, "update the recorded checksums")
	rootCmd.AddCommand(fetchDepsCmd)
}
