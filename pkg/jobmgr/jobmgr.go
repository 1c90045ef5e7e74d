// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking of the ones still running.
//
//	jm := jobmgr.NewManager(log)
//	err := jm.StartAsync("live:123", func(ctx context.Context) error {
//	    // work until ctx is cancelled
//	    return nil
//	})
//	_ = jm.Stop("live:123")
//
// Jobs run in their own goroutines and are removed when they return.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrRunning    = errors.New("job is already running")
	ErrNotRunning = errors.New("job is not running")
)

// Job represents a running unit of work.
type Job struct {
	Name   string
	Cancel context.CancelFunc
	done   chan struct{}
}

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job
	log  zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
		log:  log.With().Str("component", "jobmgr").Logger(),
	}
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// A job with the same name must not be running.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	m.start(name, runner)
	return nil
}

// Replace cancels a running job of the same name, if any, and starts runner
// in its place.
func (m *Manager) Replace(name string, runner func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.jobs[name]; ok {
		old.Cancel()
		delete(m.jobs, name)
	}
	m.start(name, runner)
}

// start must be called with m.mu held.
func (m *Manager) start(name string, runner func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{Name: name, Cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = job

	go func() {
		defer close(job.done)
		m.log.Debug().Str("job", name).Msg("Job running")

		err := runner(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.log.Warn().Err(err).Str("job", name).Msg("Job failed")
		default:
			m.log.Debug().Str("job", name).Msg("Job done")
		}

		m.mu.Lock()
		// a replaced job must not remove its successor
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
		cancel()
	}()
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// StopPrefix cancels every job whose name starts with prefix and returns
// how many were stopped.
func (m *Manager) StopPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for name, job := range m.jobs {
		if strings.HasPrefix(name, prefix) {
			job.Cancel()
			delete(m.jobs, name)
			n++
		}
	}
	return n
}

// StopAll cancels every job and waits for them to return or ctx to end.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for name, job := range m.jobs {
		job.Cancel()
		jobs = append(jobs, job)
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		select {
		case <-job.done:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}
