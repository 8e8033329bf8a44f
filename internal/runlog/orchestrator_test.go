package runlog

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/collabscout/collabscout/internal/store"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	o, err := NewRun(ctx, st, quietLogger(), map[string]any{"query": "vector db"}, "abc123")
	require.NoError(t, err)
	return o, st
}

func TestNewRunPersistsRedactedArgs(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	args := map[string]any{
		"query": "vector db",
		"token": "SENTINEL_TOKEN",
	}
	o, err := NewRun(ctx, st, quietLogger(), args, "abc123")
	require.NoError(t, err)

	run, err := st.GetRun(ctx, o.RunID())
	require.NoError(t, err)
	require.Contains(t, run.ArgsJSON, "vector db")
	require.NotContains(t, run.ArgsJSON, "SENTINEL_TOKEN")

	n, err := st.CountAuditByEvent(ctx, o.RunID(), "run.created")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAttachUnknownRun(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = Attach(ctx, st, quietLogger(), "no-such-run")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartStepRejectsUnknownName(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.StartStep(context.Background(), "mystery_step")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown step name")
}

func TestStepFinishWritesDuration(t *testing.T) {
	ctx := context.Background()
	o, st := newTestOrchestrator(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	o.Now = func() time.Time { return now }

	h, err := o.StartStep(ctx, StepSearchPass1)
	require.NoError(t, err)

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, h.Finish(ctx, store.StepSuccess, map[string]any{"repos": 3}))

	steps, err := st.ListSteps(ctx, o.RunID())
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, store.StepSuccess, steps[0].Status)
	require.Contains(t, steps[0].StatsJSON, `"duration_ms":1500`)
	require.Contains(t, steps[0].StatsJSON, `"repos":3`)

	n, err := st.CountAuditByEvent(ctx, o.RunID(), "step.finished")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStepDoubleFinishRejected(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)

	h, err := o.StartStep(ctx, StepHydrateReadme)
	require.NoError(t, err)
	require.NoError(t, h.Finish(ctx, store.StepSuccess, nil))

	err = h.Finish(ctx, store.StepFailed, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already finished")
}

func TestStepFailedEmitsFailureEvent(t *testing.T) {
	ctx := context.Background()
	o, st := newTestOrchestrator(t)

	h, err := o.StartStep(ctx, StepLLMRepoAnalysis)
	require.NoError(t, err)
	require.NoError(t, h.Finish(ctx, store.StepFailed, map[string]any{"failed": 3}))

	n, err := st.CountAuditByEvent(ctx, o.RunID(), "step.failed")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAuditRedactsData(t *testing.T) {
	ctx := context.Background()
	o, st := newTestOrchestrator(t)

	o.Audit(ctx, logrus.InfoLevel, StepInitRun, "test.event", "msg", map[string]any{
		"api_key": "SENTINEL_KEY",
		"stars":   50,
	})

	events, err := st.ListAudit(ctx, o.RunID())
	require.NoError(t, err)
	for _, e := range events {
		require.False(t, strings.Contains(e.DataJSON, "SENTINEL"),
			"audit row %s leaks a secret: %s", e.Event, e.DataJSON)
	}
}
