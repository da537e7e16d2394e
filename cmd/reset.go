package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetTenant string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a tenant's analysis record and page log",
	Long:  "Delete-and-restart is the only way to shrink a profile: merges never drop previously-known facts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteAnalysis(ctx, resetTenant); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "analysis for %q deleted\n", resetTenant)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.Migrate(ctx)
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetTenant, "tenant", "default", "business account ID")
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(migrateCmd)
}
