package briefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/store"
)

// ExportResult summarizes a markdown export for CLI output.
type ExportResult struct {
	RunID            string `json:"run_id"`
	Exported         int    `json:"exported"`
	TopOpportunities int    `json:"top_opportunities"`
	OutDir           string `json:"out_dir"`
}

// Export writes a run's briefs as markdown under outDir:
// index.md, briefs/{id}.md, briefs/{id}_outreach.md and
// TOP_OPPORTUNITY_{n}.md for the top-N shortlisted briefs. Every file
// starts with the manual-review banner.
func Export(ctx context.Context, st *store.Store, run *runlog.Orchestrator, outDir string, topN int) (*ExportResult, error) {
	step, err := run.StartStep(ctx, runlog.StepExportMarkdown)
	if err != nil {
		return nil, err
	}
	result, expErr := export(ctx, st, run.RunID(), outDir, topN)
	if expErr != nil {
		_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": expErr.Error()})
		return nil, expErr
	}
	run.Audit(ctx, logrus.InfoLevel, runlog.StepExportMarkdown, "briefs.exported",
		"markdown written", map[string]any{"dir": outDir, "briefs": result.Exported})
	if err := step.Finish(ctx, store.StepSuccess, map[string]any{
		"briefs": result.Exported, "top_opportunities": result.TopOpportunities,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func export(ctx context.Context, st *store.Store, runID, outDir string, topN int) (*ExportResult, error) {
	briefs, err := st.ListBriefsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	briefsDir := filepath.Join(outDir, "briefs")
	if err := os.MkdirAll(briefsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var index strings.Builder
	index.WriteString("# Collaboration briefs\n\n")
	index.WriteString(Banner + "\n\n")
	fmt.Fprintf(&index, "Run: %s · Generated: %s\n\n", runID, time.Now().UTC().Format(time.RFC3339))
	index.WriteString("| Brief | Score | Status | Repos |\n|---|---|---|---|\n")

	var shortlisted []*store.Brief
	for _, b := range briefs {
		fmt.Fprintf(&index, "| [%s](briefs/%s.md) | %.6f | %s | %s |\n",
			shortID(b.ID), b.ID, b.Score, b.Status, repoList(b.RepoIDsJSON))

		if err := writeBanner(filepath.Join(briefsDir, b.ID+".md"), b.Markdown); err != nil {
			return nil, err
		}
		if err := writeBanner(filepath.Join(briefsDir, b.ID+"_outreach.md"), b.Outreach); err != nil {
			return nil, err
		}
		if b.Status == store.BriefShortlisted {
			shortlisted = append(shortlisted, b)
		}
	}

	if err := os.WriteFile(filepath.Join(outDir, "index.md"), []byte(index.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	top := 0
	for i, b := range shortlisted {
		if i >= topN {
			break
		}
		name := fmt.Sprintf("TOP_OPPORTUNITY_%d.md", i+1)
		if err := writeBanner(filepath.Join(outDir, name), b.Markdown); err != nil {
			return nil, err
		}
		top++
	}

	return &ExportResult{
		RunID:            runID,
		Exported:         len(briefs),
		TopOpportunities: top,
		OutDir:           outDir,
	}, nil
}

// writeBanner writes content, prepending the banner unless already present.
func writeBanner(path, content string) error {
	if !strings.Contains(content, Banner) {
		content = Banner + "\n\n" + content
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func repoList(repoIDsJSON string) string {
	s := strings.Trim(repoIDsJSON, "[]")
	return strings.ReplaceAll(s, `"`, "")
}
