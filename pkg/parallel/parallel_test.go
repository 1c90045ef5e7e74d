package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEachVisitsAll(t *testing.T) {
	var sum atomic.Int64
	inputs := []int{1, 2, 3, 4, 5, 6, 7, 8}
	err := ForEach(context.Background(), inputs, 3, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Load() != 36 {
		t.Fatalf("sum = %d, want 36", sum.Load())
	}
}

func TestForEachRespectsLimit(t *testing.T) {
	var cur, peak atomic.Int32
	inputs := make([]int, 20)
	err := ForEach(context.Background(), inputs, 2, func(context.Context, int) error {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		cur.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d, want <= 2", peak.Load())
	}
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	inputs := make([]int, 100)
	err := ForEach(context.Background(), inputs, 1, func(context.Context, int) error {
		if calls.Add(1) == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestForEachEmpty(t *testing.T) {
	err := ForEach(context.Background(), nil, 4, func(context.Context, int) error {
		t.Fatal("called for empty input")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
