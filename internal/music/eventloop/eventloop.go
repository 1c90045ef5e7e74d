// Package eventloop runs tasks in per-key FIFO lanes. Tasks sharing a key
// never overlap and run in post order; different keys run in parallel.
//
// Playback keys lanes by guild id, so queue mutation and the decision to
// advance are one uninterruptible step per guild.
package eventloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is a unit of work for one lane.
type Task func()

type lane struct {
	tasks []Task
}

// Loop owns the lanes. The zero value is not usable; call New.
type Loop struct {
	mu    sync.Mutex
	lanes map[string]*lane
	log   zerolog.Logger
}

func New(log zerolog.Logger) *Loop {
	return &Loop{
		lanes: make(map[string]*lane),
		log:   log.With().Str("component", "eventloop").Logger(),
	}
}

// Post queues task on the lane for key and returns immediately.
func (l *Loop) Post(key string, task Task) {
	l.mu.Lock()
	if ln, ok := l.lanes[key]; ok {
		ln.tasks = append(ln.tasks, task)
		l.mu.Unlock()
		return
	}
	ln := &lane{tasks: []Task{task}}
	l.lanes[key] = ln
	l.mu.Unlock()

	go l.drain(key, ln)
}

const (
	taskQueued int32 = iota
	taskStarted
	taskAbandoned
)

// Run posts fn and waits for its result. It must not be called from a task
// running on the same key, which would deadlock the lane.
//
// When ctx ends before fn starts, fn is skipped and ctx.Err() is returned.
// Once fn has started Run waits for it, so the error always tells whether
// fn ran.
func (l *Loop) Run(ctx context.Context, key string, fn func() error) error {
	var state atomic.Int32
	done := make(chan error, 1)
	l.Post(key, func() {
		if !state.CompareAndSwap(taskQueued, taskStarted) {
			return
		}
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- call(fn)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ctx.Err()
		}
		return <-done
	}
}

// Do posts fn and waits for it like Run, but fn always runs: when ctx ends
// first the caller stops waiting and fn still runs in its turn.
func (l *Loop) Do(ctx context.Context, key string, fn func() error) error {
	done := make(chan error, 1)
	l.Post(key, func() { done <- call(fn) })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task posted on key before the call has finished.
func (l *Loop) Flush(ctx context.Context, key string) error {
	return l.Run(ctx, key, func() error { return nil })
}

func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn()
}

func (l *Loop) drain(key string, ln *lane) {
	for {
		l.mu.Lock()
		if len(ln.tasks) == 0 {
			delete(l.lanes, key)
			l.mu.Unlock()
			return
		}
		task := ln.tasks[0]
		ln.tasks[0] = nil
		ln.tasks = ln.tasks[1:]
		l.mu.Unlock()

		l.exec(key, task)
	}
}

func (l *Loop) exec(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("lane", key).Interface("panic", r).Msg("Task panicked")
		}
	}()
	task()
}
