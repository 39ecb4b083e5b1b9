// Package work runs batches of factor regressions over a bounded worker pool.
package work

import (
	"fmt"
	"time"

	"github.com/aristath/factorlab/internal/domain"
)

// TaskKind identifies what a batch task computes.
type TaskKind string

const (
	TaskWholeSample  TaskKind = "whole_sample"
	TaskRolling      TaskKind = "rolling"
	TaskCorrelations TaskKind = "correlations"
)

// Task is one unit of batch work. Window is zero for whole-sample tasks.
type Task struct {
	Kind       TaskKind `json:"kind"`
	Instrument string   `json:"instrument"`
	Window     int      `json:"window,omitempty"`
}

// ID returns a readable identifier such as "rolling:TSLA:60".
func (t Task) ID() string {
	if t.Kind == TaskWholeSample {
		return fmt.Sprintf("%s:%s", t.Kind, t.Instrument)
	}
	return fmt.Sprintf("%s:%s:%d", t.Kind, t.Instrument, t.Window)
}

// Status is the result class of a task.
type Status string

const (
	// StatusOK means the fit produced a result.
	StatusOK Status = "ok"
	// StatusSkipped means an expected no-result outcome (not found, no overlap, singular, invalid window).
	StatusSkipped Status = "skipped"
	// StatusFailed means an unexpected error.
	StatusFailed Status = "failed"
	// StatusCancelled means the task was never dispatched.
	StatusCancelled Status = "cancelled"
)

// Outcome records what happened to one task.
type Outcome struct {
	Task      Task             `json:"task"`
	Status    Status           `json:"status"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Records   int              `json:"records"`
	Duration  time.Duration    `json:"duration_ns"`
}

// Stats summarises a run.
type Stats struct {
	Tasks             int           `json:"tasks"`
	Succeeded         int           `json:"succeeded"`
	Skipped           int           `json:"skipped"`
	Failed            int           `json:"failed"`
	Cancelled         int           `json:"cancelled"`
	Workers           int           `json:"workers"`
	CPUs              int           `json:"cpus"`
	MemoryUsedPercent float64       `json:"memory_used_percent"`
	Duration          time.Duration `json:"duration_ns"`
}

// Report is the result of one batch run.
type Report struct {
	RunID       string    `json:"run_id"`
	Fingerprint string    `json:"fingerprint"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Tickers     []string  `json:"tickers"`
	Windows     []int     `json:"windows"`
	Outcomes    []Outcome `json:"outcomes"`
	Artifacts   []string  `json:"artifacts"`
	Published   bool      `json:"published"`
	Stats       Stats     `json:"stats"`
}

func outcomeFor(task Task, err error, records int, took time.Duration) Outcome {
	o := Outcome{Task: task, Records: records, Duration: took}
	switch {
	case err == nil:
		o.Status = StatusOK
	case domain.IsExpected(err):
		o.Status = StatusSkipped
	default:
		o.Status = StatusFailed
	}
	if err != nil {
		o.ErrorKind = domain.KindOf(err)
		o.Error = err.Error()
	}
	return o
}
