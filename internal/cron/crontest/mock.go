// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/trekassist/internal/cron"
)

// MockJob is a configurable cron.StartupJob. When Gate is set, Run blocks
// until Gate is closed or ctx ends.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	OnStart     bool
	Err         error
	Gate        chan struct{}

	mu      sync.Mutex
	calls   int
	started chan struct{}
}

var _ cron.StartupJob = (*MockJob)(nil)

func (m *MockJob) Name() string     { return m.NameVal }
func (m *MockJob) Schedule() string { return m.ScheduleVal }
func (m *MockJob) RunOnStart() bool { return m.OnStart }

func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	if m.started != nil {
		close(m.started)
		m.started = nil
	}
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}

// Started returns a channel closed when the next run begins.
func (m *MockJob) Started() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started == nil {
		m.started = make(chan struct{})
	}
	return m.started
}

// Calls returns the number of runs so far.
func (m *MockJob) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
