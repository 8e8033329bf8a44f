package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/collabscout/collabscout/internal/briefs"
	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
)

var briefsCmd = &cobra.Command{
	Use:   "briefs",
	Short: "Generate and export collaboration briefs",
}

var (
	briefsRunID      string
	briefsMinScore   float64
	briefsMax        int
	briefsThreshold  float64
	briefsPenalty    float64
	briefsHistory    int
	briefsOwnRepo    string
	briefsDry        bool
	briefsOutDir     string
	briefsTopOpps    int
)

var briefsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Group a run's analyses and draft scored briefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if briefsRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if !briefsDry {
			if err := cfg.RequireLive(); err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		run, err := runlog.Attach(ctx, st, log, briefsRunID)
		if err != nil {
			return err
		}
		policy, err := scoring.LoadOrDefault(cfg.PolicyPath)
		if err != nil {
			return err
		}

		lc := llm.NewClient(cfg.OpenRouterAPIKey)
		lc.Endpoint = cfg.LLMEndpoint
		if briefsDry {
			lc.HTTP = &http.Client{Transport: newDryTransport()}
		}

		engine := briefs.NewEngine(st, lc, &llm.Registry{Dir: cfg.PromptsDir}, policy, run, cfg.Model)
		engine.OverlapThreshold = cfg.OverlapThreshold
		engine.OverlapPenalty = cfg.OverlapExceptionPenalty
		engine.HistoryCandidates = cfg.HistoryCandidates
		engine.MinBriefScore = briefsMinScore
		engine.MaxBriefs = briefsMax
		engine.OwnRepo = briefsOwnRepo
		if cmd.Flags().Changed("overlap-threshold") {
			engine.OverlapThreshold = briefsThreshold
		}
		if cmd.Flags().Changed("overlap-penalty") {
			engine.OverlapPenalty = briefsPenalty
		}
		if cmd.Flags().Changed("history-candidates") {
			engine.HistoryCandidates = briefsHistory
		}

		result, err := engine.Generate(ctx)
		if err != nil {
			return err
		}
		outputJSON(result)
		return nil
	},
}

var briefsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a run's briefs as markdown files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if briefsRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if briefsOutDir == "" {
			return fmt.Errorf("--out is required")
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		run, err := runlog.Attach(ctx, st, log, briefsRunID)
		if err != nil {
			return err
		}
		topN := briefsTopOpps
		if !cmd.Flags().Changed("top-opportunities") {
			topN = cfg.TopOpportunities
		}
		result, err := briefs.Export(ctx, st, run, briefsOutDir, topN)
		if err != nil {
			return err
		}
		outputJSON(result)
		return nil
	},
}

func init() {
	briefsGenerateCmd.Flags().StringVar(&briefsRunID, "run-id", "", "run to generate briefs for")
	briefsGenerateCmd.Flags().Float64Var(&briefsMinScore, "min-score", 0.75, "shortlist threshold")
	briefsGenerateCmd.Flags().IntVar(&briefsMax, "max-briefs", 20, "cap on generated briefs")
	briefsGenerateCmd.Flags().Float64Var(&briefsThreshold, "overlap-threshold", 0.70, "competitor-filter threshold")
	briefsGenerateCmd.Flags().Float64Var(&briefsPenalty, "overlap-penalty", 0.10, "interop-exception penalty")
	briefsGenerateCmd.Flags().IntVar(&briefsHistory, "history-candidates", 100, "prior-run analyses to inject")
	briefsGenerateCmd.Flags().StringVar(&briefsOwnRepo, "own-repo", "", "repo exempt from anchor dedup")
	briefsGenerateCmd.Flags().BoolVar(&briefsDry, "dry", false, "run against canned fixtures, no tokens needed")

	briefsExportCmd.Flags().StringVar(&briefsRunID, "run-id", "", "run to export")
	briefsExportCmd.Flags().StringVar(&briefsOutDir, "out", "", "output directory")
	briefsExportCmd.Flags().IntVar(&briefsTopOpps, "top-opportunities", 3, "TOP_OPPORTUNITY files to write")

	briefsCmd.AddCommand(briefsGenerateCmd)
	briefsCmd.AddCommand(briefsExportCmd)
	rootCmd.AddCommand(briefsCmd)
}
