package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/longkey1/advchat/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionShort bool
	versionJSON  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the version, commit, build time, Go version and platform of advchat.

Use --json for machine readable output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case versionShort:
			fmt.Println(version.Short())
		case versionJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(version.Current())
		default:
			fmt.Println(version.Current())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "Show only version number")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print build information as JSON")
	versionCmd.MarkFlagsMutuallyExclusive("short", "json")
}
