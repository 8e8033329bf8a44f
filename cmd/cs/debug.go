package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/collabscout/collabscout/internal/briefs"
	"github.com/collabscout/collabscout/internal/scoring"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Inspect and replay stored runs",
}

var (
	debugRunID  string
	debugPolicy string
)

var debugReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Recompute a run's final scores read-only and report diffs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if debugRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		policyPath := cfg.PolicyPath
		if debugPolicy != "" {
			policyPath = debugPolicy
		}
		policy, err := scoring.LoadOrDefault(policyPath)
		if err != nil {
			return err
		}

		result, err := briefs.Replay(ctx, st, policy, debugRunID)
		if err != nil {
			return err
		}
		outputJSON(result)
		return nil
	},
}

var debugDumpRunCmd = &cobra.Command{
	Use:   "dump-run",
	Short: "Dump every row owned by a run as line-delimited JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if debugRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		run, err := st.GetRun(ctx, debugRunID)
		if err != nil {
			return err
		}
		outputJSON(map[string]any{"kind": "run", "row": run})

		steps, err := st.ListSteps(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, s := range steps {
			outputJSON(map[string]any{"kind": "step", "row": s})
		}

		queries, err := st.ListQueries(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, q := range queries {
			outputJSON(map[string]any{"kind": "github_query", "row": q})
		}

		repos, err := st.ListReposSeenByRun(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, r := range repos {
			outputJSON(map[string]any{"kind": "repo", "row": r})
		}

		analyses, err := st.ListAnalysesByRun(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, a := range analyses {
			outputJSON(map[string]any{"kind": "analysis", "row": a})
		}

		keywords, err := st.ListAggregateKeywords(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, k := range keywords {
			outputJSON(map[string]any{"kind": "keyword", "row": k})
		}

		allBriefs, err := st.ListBriefsByRun(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, b := range allBriefs {
			outputJSON(map[string]any{"kind": "brief", "row": b})
		}

		snaps, err := st.ListRateLimitSnapshots(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			outputJSON(map[string]any{"kind": "rate_limit_snapshot", "row": s})
		}

		events, err := st.ListAudit(ctx, debugRunID)
		if err != nil {
			return err
		}
		for _, e := range events {
			outputJSON(map[string]any{"kind": "audit_event", "row": e})
		}
		return nil
	},
}

func init() {
	debugReplayCmd.Flags().StringVar(&debugRunID, "run-id", "", "run to replay")
	debugReplayCmd.Flags().StringVar(&debugPolicy, "policy", "", "scoring policy file override")
	debugDumpRunCmd.Flags().StringVar(&debugRunID, "run-id", "", "run to dump")

	debugCmd.AddCommand(debugReplayCmd)
	debugCmd.AddCommand(debugDumpRunCmd)
	rootCmd.AddCommand(debugCmd)
}
