package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/collabscout/collabscout/internal/ghapi"
	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/pipeline"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

var scoutCmd = &cobra.Command{
	Use:   "scout",
	Short: "Discover and analyze repositories",
}

var (
	scoutQuery        string
	scoutDays         int
	scoutStars        int
	scoutMaxStars     int
	scoutTop          int
	scoutLang         string
	scoutIncludeForks bool
	scoutModel        string
	scoutDry          bool
)

var scoutRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a run and execute pass-1 discovery and analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scoutQuery == "" {
			return fmt.Errorf("--query is required")
		}
		if !scoutDry {
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

		run, err := runlog.NewRun(ctx, st, log, map[string]any{
			"command":       "scout run",
			"query":         scoutQuery,
			"days":          scoutDays,
			"stars":         scoutStars,
			"max_stars":     scoutMaxStars,
			"top":           scoutTop,
			"lang":          scoutLang,
			"include_forks": scoutIncludeForks,
			"model":         modelName(),
			"dry":           scoutDry,
		}, cfg.Hash())
		if err != nil {
			return err
		}

		p, err := buildPipeline(st, run)
		if err != nil {
			return err
		}
		result, err := p.RunPass1(ctx, pipeline.Pass1Params{
			Query:        scoutQuery,
			Days:         scoutDays,
			Stars:        scoutStars,
			MaxStars:     scoutMaxStars,
			TopN:         scoutTop,
			Language:     scoutLang,
			IncludeForks: scoutIncludeForks,
		})
		if err != nil {
			return err
		}
		outputJSON(result)
		return nil
	},
}

var (
	expandRunID    string
	expandStars    int
	expandMaxStars int
	expandQueries  int
)

var scoutExpandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Execute keyword-driven pass-2 discovery for an existing run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if expandRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		if !scoutDry {
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

		run, err := runlog.Attach(ctx, st, log, expandRunID)
		if err != nil {
			return err
		}

		p, err := buildPipeline(st, run)
		if err != nil {
			return err
		}
		params := pipeline.Pass2Params{
			Pass2Stars:    expandStars,
			Pass2MaxStars: expandMaxStars,
			MaxQueries:    expandQueries,
		}
		applyRunArgs(ctx, st, expandRunID, &params)

		result, err := p.RunPass2(ctx, params)
		if err != nil {
			return err
		}
		outputJSON(result)
		return nil
	},
}

// applyRunArgs reuses the original run's recorded search parameters for
// the qualifiers pass 2 shares with pass 1.
func applyRunArgs(ctx context.Context, st *store.Store, runID string, params *pipeline.Pass2Params) {
	params.Days = 180
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(run.ArgsJSON), &args); err != nil {
		return
	}
	if d, ok := args["days"].(float64); ok && d > 0 {
		params.Days = int(d)
	}
	if l, ok := args["lang"].(string); ok {
		params.Language = l
	}
	if f, ok := args["include_forks"].(bool); ok {
		params.IncludeForks = f
	}
}

func modelName() string {
	if scoutModel != "" {
		return scoutModel
	}
	return cfg.Model
}

// buildPipeline wires the clients for a run. In --dry mode both clients
// talk to the canned fixture transport instead of the network.
func buildPipeline(st *store.Store, run *runlog.Orchestrator) (*pipeline.Pipeline, error) {
	policy, err := scoring.LoadOrDefault(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	gh := ghapi.NewClient(cfg.GitHubToken, st)
	lc := llm.NewClient(cfg.OpenRouterAPIKey)
	lc.Endpoint = cfg.LLMEndpoint
	if scoutDry {
		fixtures := newDryTransport()
		gh.HTTP = &http.Client{Transport: fixtures}
		lc.HTTP = &http.Client{Transport: fixtures}
	}

	prompts := &llm.Registry{Dir: cfg.PromptsDir}
	return pipeline.NewPipeline(st, gh, lc, prompts, policy, run, modelName()), nil
}

func init() {
	scoutRunCmd.Flags().StringVar(&scoutQuery, "query", "", "search query text")
	scoutRunCmd.Flags().IntVar(&scoutDays, "days", 180, "only repos pushed within this many days")
	scoutRunCmd.Flags().IntVar(&scoutStars, "stars", 50, "minimum stars")
	scoutRunCmd.Flags().IntVar(&scoutMaxStars, "max-stars", 0, "maximum stars (0 = unbounded)")
	scoutRunCmd.Flags().IntVar(&scoutTop, "top", 100, "collect at most this many repos")
	scoutRunCmd.Flags().StringVar(&scoutLang, "lang", "", "restrict to a language")
	scoutRunCmd.Flags().BoolVar(&scoutIncludeForks, "include-forks", false, "include forked repos")
	scoutRunCmd.Flags().StringVar(&scoutModel, "model", "", "override the configured LLM model")
	scoutRunCmd.Flags().BoolVar(&scoutDry, "dry", false, "run against canned fixtures, no tokens needed")

	scoutExpandCmd.Flags().StringVar(&expandRunID, "run-id", "", "run to expand")
	scoutExpandCmd.Flags().IntVar(&expandStars, "pass2-stars", 15, "minimum stars for pass-2 searches")
	scoutExpandCmd.Flags().IntVar(&expandMaxStars, "pass2-max-stars", 0, "maximum stars for pass-2 searches")
	scoutExpandCmd.Flags().IntVar(&expandQueries, "max-queries", 10, "cap on generated pass-2 queries")
	scoutExpandCmd.Flags().BoolVar(&scoutDry, "dry", false, "run against canned fixtures, no tokens needed")

	scoutCmd.AddCommand(scoutRunCmd)
	scoutCmd.AddCommand(scoutExpandCmd)
	rootCmd.AddCommand(scoutCmd)
}
