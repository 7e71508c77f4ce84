package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestRunLimiter_AcquireRelease(t *testing.T) {
	limiter := NewRunLimiter(2, time.Second)
	ctx := context.Background()

	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("initial ActiveCount = %d, want 0", got)
	}

	first, err := limiter.Acquire(ctx, "Reporte enero.xlsx")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	second, err := limiter.Acquire(ctx, "Reporte febrero.xlsx")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if first.Run().ID == second.Run().ID {
		t.Errorf("run IDs should differ, both %s", first.Run().ID)
	}

	st := limiter.Status()
	if st.Active != 2 || st.Available != 0 || st.MaxConcurrent != 2 {
		t.Errorf("Status() = %+v, want Active:2 Available:0 MaxConcurrent:2", st)
	}
	if len(st.Runs) != 2 || st.Runs[0].Source != "Reporte enero.xlsx" || st.Runs[1].Source != "Reporte febrero.xlsx" {
		t.Errorf("Status().Runs = %+v, want both sources in start order", st.Runs)
	}

	first.Release()
	second.Release()

	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("after Release, ActiveCount = %d, want 0", got)
	}
	if st := limiter.Status(); len(st.Runs) != 0 || st.Available != 2 {
		t.Errorf("Status() after Release = %+v, want no runs and 2 available", st)
	}
}

func TestRunLimiter_ReleaseIsIdempotent(t *testing.T) {
	limiter := NewRunLimiter(1, time.Second)

	slot, err := limiter.TryAcquire("a.csv")
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	slot.Release()
	slot.Release()

	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
	again, err := limiter.TryAcquire("a.csv")
	if err != nil {
		t.Fatalf("TryAcquire after Release failed: %v", err)
	}
	again.Release()
}

func TestRunLimiter_DefaultsToOneSlot(t *testing.T) {
	limiter := NewRunLimiter(0, 0)
	if got := limiter.MaxConcurrent(); got != DefaultMaxConcurrentRuns {
		t.Errorf("MaxConcurrent() = %d, want %d", got, DefaultMaxConcurrentRuns)
	}
}

func TestRunLimiter_BlocksWhenFull(t *testing.T) {
	limiter := NewRunLimiter(1, 100*time.Millisecond)
	ctx := context.Background()

	slot, err := limiter.Acquire(ctx, "uno.xlsx")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer slot.Release()

	start := time.Now()
	_, err = limiter.Acquire(ctx, "dos.xlsx")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("Acquire() error = %v, want ErrTooManyRuns", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("timeout too fast: %v", elapsed)
	}

	// A timed-out waiter gives its source back.
	if _, err := limiter.TryAcquire("dos.xlsx"); !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("TryAcquire(dos.xlsx) error = %v, want ErrTooManyRuns", err)
	}
}

func TestRunLimiter_SameSourceRejected(t *testing.T) {
	limiter := NewRunLimiter(2, time.Second)

	slot, err := limiter.Acquire(context.Background(), "DDV.xlsx")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	_, err = limiter.Acquire(context.Background(), "DDV.xlsx")
	if !errors.Is(err, ErrSourceInProgress) {
		t.Fatalf("Acquire(same source) error = %v, want ErrSourceInProgress", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("duplicate rejection waited %v, want immediate", elapsed)
	}
	if code := MapError(err).Code; code != "RUN005" {
		t.Errorf("MapError().Code = %s, want RUN005", code)
	}

	// Unlabelled runs never collide.
	a, err := limiter.TryAcquire("")
	if err != nil {
		t.Fatalf("TryAcquire(\"\") failed: %v", err)
	}
	a.Release()

	slot.Release()
	again, err := limiter.TryAcquire("DDV.xlsx")
	if err != nil {
		t.Fatalf("TryAcquire after Release failed: %v", err)
	}
	again.Release()
}

func TestRunLimiter_WaitingSourceIsClaimed(t *testing.T) {
	limiter := NewRunLimiter(1, time.Second)

	holder, err := limiter.TryAcquire("uno.xlsx")
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	acquired := make(chan *RunSlot, 1)
	go func() {
		slot, err := limiter.Acquire(context.Background(), "dos.xlsx")
		if err != nil {
			t.Errorf("waiting Acquire failed: %v", err)
		}
		acquired <- slot
	}()

	// Wait until the waiter has claimed its source.
	deadline := time.Now().Add(time.Second)
	for {
		limiter.mu.Lock()
		_, claimed := limiter.claimed["dos.xlsx"]
		limiter.mu.Unlock()
		if claimed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("waiting source never claimed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := limiter.TryAcquire("dos.xlsx"); !errors.Is(err, ErrSourceInProgress) {
		t.Errorf("TryAcquire(dos.xlsx) error = %v, want ErrSourceInProgress", err)
	}

	holder.Release()
	select {
	case slot := <-acquired:
		if slot != nil {
			slot.Release()
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not get the slot")
	}
}

func TestRunLimiter_ConcurrentAccess(t *testing.T) {
	const maxConcurrent = 3
	const totalRuns = 10

	limiter := NewRunLimiter(maxConcurrent, 5*time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < totalRuns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			slot, err := limiter.Acquire(context.Background(), "hoja_"+strconv.Itoa(i)+".csv")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer slot.Release()

			mu.Lock()
			if current := limiter.ActiveCount(); current > maxObserved {
				maxObserved = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
		}(i)
	}

	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("exceeded max concurrent: observed %d, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("final ActiveCount = %d, want 0", got)
	}
}

func TestRunLimiter_ContextCancellation(t *testing.T) {
	limiter := NewRunLimiter(1, 5*time.Second)

	slot, err := limiter.Acquire(context.Background(), "uno.xlsx")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer slot.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := limiter.Acquire(ctx, "dos.xlsx")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after context cancellation")
	}
}

func TestRunLimiter_WaitForDrain(t *testing.T) {
	limiter := NewRunLimiter(1, time.Second)

	if err := limiter.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("WaitForDrain on idle limiter = %v, want nil", err)
	}

	slot, err := limiter.TryAcquire("uno.xlsx")
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		slot.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() = %v, want nil", err)
	}
}

func TestRunLimiter_WaitForDrainTimeout(t *testing.T) {
	limiter := NewRunLimiter(1, time.Second)
	slot, err := limiter.TryAcquire("uno.xlsx")
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	defer slot.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() = %v, want context.DeadlineExceeded", err)
	}
}
