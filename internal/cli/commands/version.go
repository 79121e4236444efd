package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaelin-dev/subtrans/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(version.GetInfo())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
