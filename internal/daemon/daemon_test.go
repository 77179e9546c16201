package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/ingest"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/notify"
	"github.com/zulandar/lectern/internal/optimize"
)

type fakeIngester struct {
	mu    sync.Mutex
	calls int
	sum   ingest.Summary
	err   error
}

func (f *fakeIngester) RunPending(ctx context.Context, channelID uint, limit int) (ingest.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sum, f.err
}

func (f *fakeIngester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeScanner struct{ rep bias.ScanReport }

func (f *fakeScanner) ScanAll(ctx context.Context, opts bias.ScanOptions) (bias.ScanReport, error) {
	return f.rep, nil
}

type fakeOptimizer struct {
	rep optimize.Report
	err error
}

func (f *fakeOptimizer) Run(ctx context.Context) (optimize.Report, error) { return f.rep, f.err }

type fakeQueue struct {
	pending  int
	executed int
}

func (f *fakeQueue) List(ctx context.Context, status string) ([]models.OptimizationQueueItem, error) {
	return make([]models.OptimizationQueueItem, f.pending), nil
}

func (f *fakeQueue) ExecuteApproved(ctx context.Context) ([]models.OptimizationQueueItem, error) {
	f.executed++
	return nil, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Logger: logging.Discard()})
	assert.ErrorContains(t, err, "no jobs scheduled")

	// A schedule without a component is ignored.
	_, err = New(Options{Schedule: config.ScheduleConfig{Ingest: "0 * * * *"}})
	assert.ErrorContains(t, err, "no jobs scheduled")

	_, err = New(Options{
		Schedule: config.ScheduleConfig{Ingest: "not a cron", Optimize: "61 * * * *"},
		Ingester: &fakeIngester{}, Optimizer: &fakeOptimizer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.ingest")
	assert.Contains(t, err.Error(), "schedule.optimize")

	d, err := New(Options{
		Schedule: config.ScheduleConfig{Ingest: "*/30 * * * *", BiasScan: "@hourly"},
		Ingester: &fakeIngester{}, Scanner: &fakeScanner{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{JobIngest, JobBiasScan}, d.Jobs())
}

func TestRunJob_IngestNotifies(t *testing.T) {
	n := &fakeNotifier{}
	d, err := New(Options{
		Schedule: config.ScheduleConfig{Ingest: "@hourly"},
		Ingester: &fakeIngester{sum: ingest.Summary{Processed: 2, Analyzed: 1, Failed: 1}},
		Notifier: n,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)

	d.RunJob(context.Background(), JobIngest)
	require.Len(t, n.msgs, 1)
	assert.Equal(t, "Ingest: 1 of 2 videos analyzed", n.msgs[0].Text)
}

func TestRunJob_QuietPassesDoNotNotify(t *testing.T) {
	n := &fakeNotifier{}
	d, err := New(Options{
		Schedule: config.ScheduleConfig{Ingest: "@hourly", BiasScan: "@hourly"},
		Ingester: &fakeIngester{},
		Scanner:  &fakeScanner{rep: bias.ScanReport{Scanned: 4}},
		Notifier: n,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)

	d.RunJob(context.Background(), JobIngest)
	d.RunJob(context.Background(), JobBiasScan)
	assert.Empty(t, n.msgs)
}

func TestRunJob_OptimizeReportsBacklog(t *testing.T) {
	n := &fakeNotifier{err: errors.New("slack down")}
	d, err := New(Options{
		Schedule:  config.ScheduleConfig{Optimize: "0 3 * * *"},
		Optimizer: &fakeOptimizer{rep: optimize.Report{Suggestions: 2}},
		Queue:     &fakeQueue{pending: 3},
		Notifier:  n,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)

	// A failed notification is logged and ignored.
	d.RunJob(context.Background(), JobOptimize)
	require.Len(t, n.msgs, 1)
	assert.Equal(t, "Optimizer: 3 items awaiting approval", n.msgs[0].Text)
}

func TestRunJob_FailedOptimizeSendsNothing(t *testing.T) {
	n := &fakeNotifier{}
	d, err := New(Options{
		Schedule:  config.ScheduleConfig{Optimize: "0 3 * * *"},
		Optimizer: &fakeOptimizer{err: errors.New("db locked")},
		Notifier:  n,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	d.RunJob(context.Background(), JobOptimize)
	assert.Empty(t, n.msgs)
}

func TestRun_FiresAndStops(t *testing.T) {
	ing := &fakeIngester{}
	q := &fakeQueue{}
	dashStopped := make(chan struct{})
	d, err := New(Options{
		Schedule: config.ScheduleConfig{Ingest: "@every 1s"},
		Ingester: ing,
		Queue:    q,
		Dashboard: func(ctx context.Context) error {
			<-ctx.Done()
			close(dashStopped)
			return nil
		},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return ing.count() > 0 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-dashStopped
	assert.Equal(t, 1, q.executed)
}
