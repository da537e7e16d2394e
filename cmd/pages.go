package main

import (
	"github.com/spf13/cobra"
)

var (
	pagesTenant string
	pagesKey    string
	pagesAppend bool
)

var pagesCmd = &cobra.Command{
	Use:   "pages <url> [url...]",
	Short: "Analyze an explicit list of pages",
	Long:  "Scrapes exactly the given URLs. With --append, new facts are merged into the existing profile instead of rebuilding it; without a prior profile this falls back to a fresh synthesis.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		orch := initOrchestrator(st)
		if err := orch.AnalyzePages(ctx, pagesTenant, args, pagesKey, pagesAppend); err != nil {
			return err
		}

		return printRecord(cmd, st, pagesTenant)
	},
}

func init() {
	pagesCmd.Flags().StringVar(&pagesTenant, "tenant", "default", "business account ID")
	pagesCmd.Flags().StringVar(&pagesKey, "api-key", "", "synthesizer API key (defaults to config)")
	pagesCmd.Flags().BoolVar(&pagesAppend, "append", false, "merge new facts into the existing profile")
	rootCmd.AddCommand(pagesCmd)
}
