package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newLoop(t *testing.T) *Loop {
	t.Helper()
	return New(zerolog.Nop())
}

func TestPostKeepsOrderPerKey(t *testing.T) {
	l := newLoop(t)
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		l.Post("g", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	if err := l.Flush(context.Background(), "g"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
}

func TestTasksOnOneKeyNeverOverlap(t *testing.T) {
	l := newLoop(t)
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Run(context.Background(), "g", func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Fatalf("max concurrent tasks = %d, want 1", maxActive)
	}
}

func TestKeysRunInParallel(t *testing.T) {
	l := newLoop(t)
	release := make(chan struct{})
	l.Post("a", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Run(ctx, "b", func() error { return nil }); err != nil {
		t.Fatalf("lane b blocked by lane a: %v", err)
	}
	close(release)
}

func TestRunReturnsTaskError(t *testing.T) {
	l := newLoop(t)
	want := errors.New("boom")
	if err := l.Run(context.Background(), "g", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("Run() = %v, want %v", err, want)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	l := newLoop(t)
	err := l.Run(context.Background(), "g", func() error { panic("bad") })
	if err == nil {
		t.Fatal("Run() = nil after panic")
	}
	// lane keeps working afterwards
	if err := l.Flush(context.Background(), "g"); err != nil {
		t.Fatal(err)
	}
}

func TestRunHonoursContext(t *testing.T) {
	l := newLoop(t)
	release := make(chan struct{})
	defer close(release)
	l.Post("g", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := l.Run(ctx, "g", func() error { ran.Store(true); return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want deadline exceeded", err)
	}
	if ran.Load() {
		t.Fatal("task ran although its context expired first")
	}
}

func TestRunWaitsForStartedTask(t *testing.T) {
	l := newLoop(t)
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Run(ctx, "g", func() error {
			close(started)
			time.Sleep(30 * time.Millisecond)
			return nil
		})
	}()
	<-started
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("Run() = %v, want the result of the task that ran", err)
	}
}

func TestDoRunsAfterDeadline(t *testing.T) {
	l := newLoop(t)
	release := make(chan struct{})
	l.Post("g", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := l.Do(ctx, "g", func() error { ran.Store(true); return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() = %v, want deadline exceeded", err)
	}

	close(release)
	if err := l.Flush(context.Background(), "g"); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Fatal("task dropped after its caller stopped waiting")
	}
}
