package cli

import (
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge alert history beyond the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Cleanup(cmd.Context())
	},
}
