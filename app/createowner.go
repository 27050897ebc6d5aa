package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guildhall-app/guildhall/internal/config"
	"github.com/guildhall-app/guildhall/internal/daemon"
	"github.com/guildhall-app/guildhall/internal/logger"
)

func init() { //nolint: gochecknoinits
	createOwnerCmd.Flags().StringVar(&configPath, "config", "etc/", "Path to the configuration directory")
	createOwnerCmd.Flags().StringVar(&ownerEmail, "email", "", "Owner email address")
	createOwnerCmd.Flags().StringVar(&ownerPassword, "password", "", "Owner password")
	createOwnerCmd.Flags().StringVar(&ownerName, "name", "", "Owner display name")

	_ = createOwnerCmd.MarkFlagRequired("email")
	_ = createOwnerCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(createOwnerCmd)
}

var (
	ownerEmail    string
	ownerPassword string
	ownerName     string

	createOwnerCmd = &cobra.Command{
		Use:   "create-owner",
		Short: "Create the portal owner identity and account",
		Long: `Create the local owner identity and its approved top-role account.
Refuses when an owner account already exists; the usual path is the very
first sign-in, which becomes the owner automatically.`,
		PreRun: func(_ *cobra.Command, _ []string) {
			if cfg, err = config.ReadConfig(configPath); err != nil {
				panic(err)
			}

			if err = logger.Init(cfg.Log); err != nil {
				panic(err)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := daemon.New(&cfg)
			if err != nil {
				return err
			}

			acct, err := d.CreateOwner(context.Background(), ownerEmail, ownerPassword, ownerName)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "owner account %s created for %s\n", acct.ID, acct.Email)

			return nil
		},
	}
)
