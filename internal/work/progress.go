package work

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Throttle interval for progress logs
const progressThrottleInterval = 2 * time.Second

// ProgressReporter logs batch progress at most once per throttle interval.
type ProgressReporter struct {
	log   zerolog.Logger
	total int

	mu         sync.Mutex
	done       int
	lastReport time.Time
}

// NewProgressReporter creates a progress reporter for total tasks
func NewProgressReporter(log zerolog.Logger, total int) *ProgressReporter {
	return &ProgressReporter{log: log, total: total, lastReport: time.Now()}
}

// Done marks one task complete and logs when the throttle allows or the batch is finished.
func (p *ProgressReporter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if p.done < p.total && time.Since(p.lastReport) < progressThrottleInterval {
		return
	}
	p.lastReport = time.Now()
	p.log.Info().Int("done", p.done).Int("total", p.total).Msg("Batch progress")
}

// Completed returns how many tasks are done.
func (p *ProgressReporter) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
