package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/giantswarm/pgtestenv"
)

func newPurgeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove workspaces left behind by crashed processes",
		Long: `Remove workspaces whose owning process is gone. Workspaces of
running servers are left alone, so purge is safe to run at any time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := pgtestenv.PurgeStale(cmd.Context(), v.GetString("base-dir"))
			for _, path := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return err
		},
	}

	cmd.Flags().String("base-dir", "", "directory holding workspaces (default: system temp dir)")
	return cmd
}
