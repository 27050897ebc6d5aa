// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "guildhall",
	Short: "Guildhall is the membership portal's authorization and session service",
	Long: `Guildhall serves the membership portal's authorization and session core:
role-based permissions, social identity linking, first-login account
provisioning and the session API the portal frontends consume.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
