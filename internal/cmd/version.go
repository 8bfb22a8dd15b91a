package cmd

import (
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for Go, Gofulmen and Crucible versions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printf("%s %s\n", appIdentity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		printf("Commit: %s\n", versionInfo.Commit)
		printf("Built: %s\n", versionInfo.BuildDate)
		printf("Go: %s\n\n", runtime.Version())

		deps := crucible.GetVersion()
		printf("Gofulmen: %s\n", deps.Gofulmen)
		printf("Crucible: %s\n", deps.Crucible)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
