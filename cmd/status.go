package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusTenant string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a tenant's analysis record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return printRecord(cmd, st, statusTenant)
	},
}

var pagesLogTenant string

var pagesLogCmd = &cobra.Command{
	Use:   "pages-log",
	Short: "List the pages scraped for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pages, err := st.ListAnalyzedPages(ctx, pagesLogTenant)
		if err != nil {
			return err
		}
		for _, p := range pages {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.AnalyzedAt.Format("2006-01-02 15:04:05"), p.URL)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "default", "business account ID")
	pagesLogCmd.Flags().StringVar(&pagesLogTenant, "tenant", "default", "business account ID")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pagesLogCmd)
}
