package observability

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

func TestShutdownRunsRegisteredFuncs(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 5*time.Second)

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 shutdown calls, got %d", calls.Load())
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 5*time.Second)

	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("close failed")
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return nil
	})

	err := sm.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected an error when a shutdown function fails")
	}
}

func TestShutdownTimeout(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 50*time.Millisecond)

	started := make(chan struct{})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sm.Shutdown(ctx)
	<-started
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewShutdownManagerDefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("expected default 30s timeout, got %v", sm.shutdownTimeout)
	}
}
