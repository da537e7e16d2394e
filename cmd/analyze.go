package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/site-analyzer/internal/store"
)

var (
	analyzeTenant string
	analyzeKey    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <website-url>",
	Short: "Analyze a website and synthesize its business profile",
	Args:  cobra.ExactArgs(1),
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
		if err := orch.AnalyzeSite(ctx, analyzeTenant, args[0], analyzeKey); err != nil {
			return err
		}

		return printRecord(cmd, st, analyzeTenant)
	},
}

func printRecord(cmd *cobra.Command, st store.Store, tenant string) error {
	rec, err := st.GetProfile(cmd.Context(), tenant)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "no analysis record")
		return nil
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTenant, "tenant", "default", "business account ID")
	analyzeCmd.Flags().StringVar(&analyzeKey, "api-key", "", "synthesizer API key (defaults to config)")
	rootCmd.AddCommand(analyzeCmd)
}
