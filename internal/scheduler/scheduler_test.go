package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorlab/internal/database"
	testingpkg "github.com/aristath/factorlab/internal/testing"
	"github.com/aristath/factorlab/internal/work"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestScheduler_AddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
}

func TestScheduler_AddJob_SecondsField(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 30 2 * * *", &countingJob{}))
	require.NoError(t, s.AddJob("@every 1h", &countingJob{}))
	s.Start()
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	job := NewCheckWALCheckpointsJob(map[string]*database.DB{
		"returns": testingpkg.NewTestDB(t, "returns"),
		"cache":   testingpkg.NewTestDB(t, "cache"),
		"missing": nil,
	}, zerolog.Nop())

	assert.Equal(t, "check_wal_checkpoints", job.Name())
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(nil, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckDatabasesJob_Run(t *testing.T) {
	job := NewCheckDatabasesJob(map[string]*database.DB{
		"returns": testingpkg.NewTestDB(t, "returns"),
		"cache":   nil,
	}, zerolog.Nop())

	assert.Equal(t, "check_databases", job.Name())
	assert.NoError(t, job.Run())
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.calls++
	return f.err
}

type fakeRunner struct {
	tickers []string
	windows []int
	err     error
}

func (f *fakeRunner) Run(_ context.Context, tickers []string, windows []int) (*work.Report, error) {
	f.tickers, f.windows = tickers, windows
	if f.err != nil {
		return nil, f.err
	}
	return &work.Report{RunID: "r1"}, nil
}

func TestBatchJob_Run(t *testing.T) {
	store := &fakeReloader{}
	runner := &fakeRunner{}
	job := NewBatchJob(store, runner, []string{"SPY"}, []int{60, 120}, 0, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, []string{"SPY"}, runner.tickers)
	assert.Equal(t, []int{60, 120}, runner.windows)
	assert.Equal(t, "factor_batch", job.Name())
}

func TestBatchJob_ReloadFailureStopsRun(t *testing.T) {
	store := &fakeReloader{err: errors.New("disk gone")}
	runner := &fakeRunner{}
	job := NewBatchJob(store, runner, nil, []int{60}, 0, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Nil(t, runner.windows)
}

func TestBatchJob_RunnerError(t *testing.T) {
	job := NewBatchJob(&fakeReloader{}, &fakeRunner{err: errors.New("no output dir")}, nil, []int{60}, 0, zerolog.Nop())
	assert.EqualError(t, job.Run(), "no output dir")
}

func TestBatchJob_SkipsOverlappingRun(t *testing.T) {
	store := &fakeReloader{}
	job := NewBatchJob(store, &fakeRunner{}, nil, []int{60}, 0, zerolog.Nop())

	job.mu.Lock()
	assert.NoError(t, job.Run())
	job.mu.Unlock()
	assert.Equal(t, 0, store.calls)
}
