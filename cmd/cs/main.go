// Command cs is the collaboration scout CLI: it searches GitHub for
// interesting repos, analyzes them with an LLM, and drafts ranked
// collaboration briefs for manual review.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/collabscout/collabscout/internal/config"
	"github.com/collabscout/collabscout/internal/store"
	"github.com/collabscout/collabscout/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

var (
	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "cs",
	Short:         "Collaboration scout: find repos worth collaborating with",
	Long:          "cs searches GitHub, scores repositories with an LLM under a\ndeterministic policy, and drafts collaboration briefs into a local\nSQLite store for manual review.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx := context.Background()

	var err error
	cfg, err = config.Load()
	if err != nil {
		outputJSONError(err, "config_invalid")
	}
	log = cfg.NewLogger()

	if err := telemetry.Init(ctx, Version); err != nil {
		log.WithError(err).Warn("telemetry init failed, continuing without export")
	}
	defer telemetry.Shutdown(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		outputJSONError(err, "")
	}
}

// openStore opens the configured database; Open applies pending migrations.
func openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.DBPath, err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close store: %v\n", err)
	}
}
