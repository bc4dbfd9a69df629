package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errUnlockNeedsForce = errors.New("refusing to remove the migration lock without --force")

func newUnlockCmd(v *viper.Viper) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove a stuck migration lock left by a crashed runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errUnlockNeedsForce
			}
			ctx := cmd.Context()
			m, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()
			li, err := m.Lock(ctx)
			if err != nil {
				return err
			}
			if !li.Held {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "lock: free")
				return err
			}
			if err := m.ForceUnlock(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "lock held by %s released\n", li.Owner)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "remove the lock whoever holds it")
	return cmd
}
