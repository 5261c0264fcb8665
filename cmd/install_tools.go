package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/logmark/build-tools/pkg"
	"github.com/logmark/build-tools/pkg/bootstrap"
)

var installToolsCmd = &cobra.Command{
	Use:   "install-tools",
	Short: "Installs the cargo CLI tools listed in TOOLS.yml",
	Long: `Installs every tool listed in TOOLS.yml that isn't already available on
your PATH. The tools are fetched with cargo install.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		root, err := pkg.GetProjectRoot()
		if err != nil {
			return err
		}

		manifest, err := bootstrap.LoadManifest(filepath.Join(root, "TOOLS.yml"))
		if err != nil {
			return err
		}

		pkg.PrintTask("Installing tools")
		return bootstrap.NewRunner().InstallMissing(cmd.Context(), manifest, force)
	},
}

func init() {
	installToolsCmd.Flags().BoolP("force", "f", false, "reinstall tools that are already available")
	rootCmd.AddCommand(installToolsCmd)
}
