package executor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/executor"
)

func TestNew_DefaultWorkers(t *testing.T) {
	e := executor.New(0)
	defer e.Shutdown()
	if e.Workers() < 1 {
		t.Fatalf("Workers() = %d, want >= 1", e.Workers())
	}
}

func TestShutdown_DrainsAllTasks(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 7, 250} {
		e := executor.New(3)
		var ran atomic.Int64
		for range n {
			if _, err := e.Schedule(func() error {
				time.Sleep(100 * time.Microsecond)
				ran.Add(1)
				return nil
			}); err != nil {
				t.Fatalf("Schedule: %v", err)
			}
		}
		e.Shutdown()
		if got := ran.Load(); got != int64(n) {
			t.Errorf("n=%d: %d tasks ran before Shutdown returned", n, got)
		}
	}
}

func TestSchedule_AfterShutdown(t *testing.T) {
	e := executor.New(1)
	e.Shutdown()
	_, err := e.Schedule(func() error { return nil })
	if !errors.Is(err, executor.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestSchedule_NilTask(t *testing.T) {
	e := executor.New(1)
	defer e.Shutdown()
	if _, err := e.Schedule(nil); err == nil {
		t.Fatal("expected error for nil task")
	}
}

func TestHandle_ReportsResult(t *testing.T) {
	e := executor.New(2)
	defer e.Shutdown()

	want := errors.New("boom")
	h, err := e.Schedule(func() error { return want })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := h.Wait(context.Background()); !errors.Is(got, want) {
		t.Fatalf("Wait = %v, want %v", got, want)
	}
	if got := h.Err(); !errors.Is(got, want) {
		t.Fatalf("Err = %v, want %v", got, want)
	}
}

func TestHandle_WaitRespectsContext(t *testing.T) {
	e := executor.New(1)
	release := make(chan struct{})
	h, err := e.Schedule(func() error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want DeadlineExceeded", err)
	}
	if h.Err() != nil {
		t.Fatal("Err() non-nil before task finished")
	}
	close(release)
	e.Shutdown()
	select {
	case <-h.Done():
	default:
		t.Fatal("task not finished after Shutdown")
	}
}

func TestSchedule_PanicBecomesError(t *testing.T) {
	e := executor.New(1)
	h, err := e.Schedule(func() error { panic("bad task") })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := h.Wait(context.Background()); err == nil {
		t.Fatal("expected error from panicking task")
	}
	// The pool must still be usable.
	h2, err := e.Schedule(func() error { return nil })
	if err != nil {
		t.Fatalf("Schedule after panic: %v", err)
	}
	if err := h2.Wait(context.Background()); err != nil {
		t.Fatalf("second task: %v", err)
	}
	e.Shutdown()
}

func TestSchedule_FIFOWithSingleWorker(t *testing.T) {
	e := executor.New(1)
	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 20 {
		if _, err := e.Schedule(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	e.Shutdown()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if len(order) != 20 {
		t.Fatalf("ran %d tasks, want 20", len(order))
	}
}

func TestShutdown_ConcurrentSchedule(t *testing.T) {
	e := executor.New(4)
	var (
		accepted atomic.Int64
		ran      atomic.Int64
		wg       sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if _, err := e.Schedule(func() error {
					ran.Add(1)
					return nil
				}); err == nil {
					accepted.Add(1)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	e.Shutdown()
	wg.Wait()
	if ran.Load() != accepted.Load() {
		t.Fatalf("ran %d tasks, accepted %d", ran.Load(), accepted.Load())
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	e := executor.New(2)
	e.Shutdown()
	done := make(chan struct{})
	go func() {
		e.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Shutdown blocked")
	}
}

func TestHooks(t *testing.T) {
	var scheduled, done, failed atomic.Int64
	e := executor.New(2, executor.WithHooks(executor.Hooks{
		OnScheduled: func() { scheduled.Add(1) },
		OnDone: func(err error) {
			done.Add(1)
			if err != nil {
				failed.Add(1)
			}
		},
	}))
	for i := range 4 {
		_, _ = e.Schedule(func() error {
			if i%2 == 0 {
				return errors.New("odd one out")
			}
			return nil
		})
	}
	e.Shutdown()
	if scheduled.Load() != 4 || done.Load() != 4 || failed.Load() != 2 {
		t.Fatalf("scheduled=%d done=%d failed=%d, want 4/4/2", scheduled.Load(), done.Load(), failed.Load())
	}
}
