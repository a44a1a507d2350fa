package cli

import (
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test-channels",
	Short: "Verify connectivity of every configured alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TestChannels(cmd.Context())
	},
}
