package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/scoring"
)

var doctorJSON bool

// doctorCheck is one health probe result.
type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, database, prompts and policy health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var checks []doctorCheck
		fatal := false

		add := func(name string, err error, detail string) {
			c := doctorCheck{Name: name, Status: "ok", Detail: detail}
			if err != nil {
				c.Status = "fail"
				c.Detail = err.Error()
				fatal = true
			}
			checks = append(checks, c)
		}
		warn := func(name, detail string) {
			checks = append(checks, doctorCheck{Name: name, Status: "warn", Detail: detail})
		}

		add("config", cfg.Validate(), "")

		if cfg.GitHubToken == "" {
			warn("github_token", "GITHUB_TOKEN unset; live runs will fail, --dry still works")
		} else {
			add("github_token", nil, "present")
		}
		if cfg.OpenRouterAPIKey == "" {
			warn("openrouter_api_key", "OPENROUTER_API_KEY unset; live runs will fail, --dry still works")
		} else {
			add("openrouter_api_key", nil, "present")
		}

		st, err := openStore(ctx)
		add("database", err, cfg.DBPath)
		if err == nil {
			applied, merr := st.AppliedMigrations(ctx)
			add("migrations", merr, fmt.Sprintf("%d applied", len(applied)))
			closeStore(st)
		}

		registry := &llm.Registry{Dir: cfg.PromptsDir}
		for _, id := range []string{"repo_analysis", "brief_generate"} {
			_, err := registry.Load(id, "v1")
			add("prompt:"+id, err, "")
		}

		policy, err := scoring.LoadOrDefault(cfg.PolicyPath)
		if err != nil {
			add("policy", err, "")
		} else {
			add("policy", nil, "version "+policy.Version)
		}

		if doctorJSON {
			outputJSON(map[string]any{"checks": checks, "fatal": fatal})
		} else {
			for _, c := range checks {
				line := fmt.Sprintf("%-24s %s", c.Name, c.Status)
				if c.Detail != "" {
					line += "  " + c.Detail
				}
				fmt.Println(line)
			}
		}
		if fatal {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "machine-readable output")
	rootCmd.AddCommand(doctorCmd)
}
