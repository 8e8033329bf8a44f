// Package runlog owns run/step lifecycle and the audit event sink. One
// orchestrator exists per run; there is no ambient process-wide state.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/collabscout/collabscout/internal/redact"
	"github.com/collabscout/collabscout/internal/store"
)

// Canonical step names. The set is closed; StartStep rejects anything else.
const (
	StepInitRun             = "init_run"
	StepRateLimitSnapshot   = "github_rate_limit_snapshot"
	StepSearchPass1         = "github_search_pass1"
	StepHydrateRepoMetadata = "hydrate_repo_metadata"
	StepHydrateReadme       = "hydrate_readme"
	StepLLMRepoAnalysis     = "llm_repo_analysis"
	StepKeywordAggregate    = "keyword_aggregate"
	StepSearchPass2         = "github_search_pass2"
	StepLLMBriefGenerate    = "llm_brief_generate"
	StepExportMarkdown      = "export_markdown"
)

var canonicalSteps = map[string]bool{
	StepInitRun:             true,
	StepRateLimitSnapshot:   true,
	StepSearchPass1:         true,
	StepHydrateRepoMetadata: true,
	StepHydrateReadme:       true,
	StepLLMRepoAnalysis:     true,
	StepKeywordAggregate:    true,
	StepSearchPass2:         true,
	StepLLMBriefGenerate:    true,
	StepExportMarkdown:      true,
}

// Orchestrator scopes every store write to one run id.
type Orchestrator struct {
	st    *store.Store
	log   *logrus.Logger
	runID string
	Now   func() time.Time
}

// RunID returns the correlation id.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// NewRun creates the run row (UUID id, redacted args, discoverable git
// commit, truncated config hash) and returns its orchestrator.
func NewRun(ctx context.Context, st *store.Store, log *logrus.Logger, args map[string]any, configHash string) (*Orchestrator, error) {
	o := &Orchestrator{
		st:    st,
		log:   log,
		runID: uuid.NewString(),
		Now:   time.Now,
	}

	argsJSON, err := json.Marshal(redact.Value(args))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run args: %w", err)
	}

	run := &store.Run{
		ID:         o.runID,
		CreatedAt:  o.Now(),
		ArgsJSON:   string(argsJSON),
		ConfigHash: configHash,
		GitCommit:  gitCommit(),
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	o.Audit(ctx, logrus.InfoLevel, StepInitRun, "run.created", "run created",
		map[string]any{"config_hash": configHash, "git_commit": run.GitCommit})
	return o, nil
}

// Attach returns an orchestrator for an existing run (scout:expand,
// briefs:generate and the debug commands operate on prior runs).
func Attach(ctx context.Context, st *store.Store, log *logrus.Logger, runID string) (*Orchestrator, error) {
	if _, err := st.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return &Orchestrator{st: st, log: log, runID: runID, Now: time.Now}, nil
}

// gitCommit returns HEAD when the working directory is a git checkout.
func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Audit redacts data, stamps the run id and writes one audit row. The
// same event is mirrored to the process logger.
func (o *Orchestrator) Audit(ctx context.Context, level logrus.Level, scope, event, message string, data map[string]any) {
	clean := redact.Value(data)
	dataJSON, err := json.Marshal(clean)
	if err != nil {
		dataJSON = []byte("{}")
	}

	e := &store.AuditEvent{
		RunID:    o.runID,
		TS:       o.Now(),
		Level:    level.String(),
		Scope:    scope,
		Event:    event,
		Message:  message,
		DataJSON: string(dataJSON),
	}
	if err := o.st.AppendAudit(ctx, e); err != nil {
		// Audit must not take the pipeline down; surface on stderr only.
		o.log.WithError(err).Warn("failed to append audit event")
	}

	fields := logrus.Fields{"run_id": o.runID, "event": event, "scope": scope}
	if m, ok := clean.(map[string]any); ok {
		for k, v := range m {
			fields[k] = v
		}
	}
	o.log.WithFields(fields).Log(level, message)
}

// StepHandle tracks one running step until Finish.
type StepHandle struct {
	o       *Orchestrator
	id      int64
	name    string
	started time.Time
	done    bool
}

// StartStep begins a canonical step and writes its step.started event.
func (o *Orchestrator) StartStep(ctx context.Context, name string) (*StepHandle, error) {
	if !canonicalSteps[name] {
		return nil, fmt.Errorf("unknown step name %q", name)
	}
	started := o.Now()
	id, err := o.st.StartStep(ctx, o.runID, name, started)
	if err != nil {
		return nil, err
	}
	o.Audit(ctx, logrus.InfoLevel, name, "step.started", "step started", nil)
	return &StepHandle{o: o, id: id, name: name, started: started}, nil
}

// Name returns the step's canonical name.
func (h *StepHandle) Name() string {
	return h.name
}

// Finish finalizes the step exactly once and writes step.finished or
// step.failed with duration_ms in the stats payload.
func (h *StepHandle) Finish(ctx context.Context, status string, stats map[string]any) error {
	if h.done {
		return fmt.Errorf("step %s already finished", h.name)
	}
	h.done = true

	finished := h.o.Now()
	if stats == nil {
		stats = map[string]any{}
	}
	stats["duration_ms"] = finished.Sub(h.started).Milliseconds()

	statsJSON, err := json.Marshal(redact.Value(stats))
	if err != nil {
		statsJSON = []byte("{}")
	}
	if err := h.o.st.FinishStep(ctx, h.id, status, finished, string(statsJSON)); err != nil {
		return err
	}

	event := "step.finished"
	level := logrus.InfoLevel
	if status == store.StepFailed {
		event = "step.failed"
		level = logrus.ErrorLevel
	}
	h.o.Audit(ctx, level, h.name, event, "step "+status, stats)
	return nil
}
