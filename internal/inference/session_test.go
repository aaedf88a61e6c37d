package inference

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func TestSessionHoldsHandleBetweenGenerations(t *testing.T) {
	h := NewHandle(newScriptModel('a'), &charTokenizer{})
	s, err := h.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := h.Acquire(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire err = %v, want ErrBusy", err)
	}

	opts := Options{MaxTokens: Ptr(2)}
	if got, err := s.Generate(context.Background(), Request{Prompt: "p"}, opts); err != nil || got != "aa" {
		t.Fatalf("session Generate = %q, %v", got, err)
	}
	if h.State() != Waiting {
		t.Fatalf("state = %s, want waiting", h.State())
	}
	if _, err := h.Generate(context.Background(), Request{Prompt: "p"}, opts); !errors.Is(err, ErrBusy) {
		t.Fatalf("Generate while held err = %v, want ErrBusy", err)
	}
	if _, err := s.Generate(context.Background(), Request{Prompt: "p"}, opts); err != nil {
		t.Fatalf("second session Generate: %v", err)
	}

	s.Release()
	s.Release()
	if _, err := s.Generate(context.Background(), Request{Prompt: "p"}, opts); !errors.Is(err, ErrBusy) {
		t.Fatalf("Generate on released session err = %v, want ErrBusy", err)
	}
	if _, err := h.Generate(context.Background(), Request{Prompt: "p"}, opts); err != nil {
		t.Fatalf("Generate after release: %v", err)
	}
	next, err := h.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	s.Release()
	if _, err := h.Acquire(); !errors.Is(err, ErrBusy) {
		t.Fatalf("stale Release freed a newer session: %v", err)
	}
	next.Release()
}

func TestCancelStopsIdleSession(t *testing.T) {
	h := NewHandle(newScriptModel('a'), &charTokenizer{})
	s, err := h.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := s.Generate(context.Background(), Request{Prompt: "p"}, Options{}); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	s.Release()

	s, err = h.Acquire()
	if err != nil {
		t.Fatalf("Acquire after cancel: %v", err)
	}
	defer s.Release()
	if _, err := s.Generate(context.Background(), Request{Prompt: "p"}, Options{MaxTokens: Ptr(1)}); err != nil {
		t.Fatalf("fresh session Generate: %v", err)
	}
}

func TestAcquireClosedHandle(t *testing.T) {
	h := NewHandle(newScriptModel('a'), &charTokenizer{})
	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := h.Acquire(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestCancelAfterSamplingIsReported(t *testing.T) {
	model := newScriptModel('a')
	h := NewHandle(model, &charTokenizer{})

	cancelled := make(chan error, 1)
	check := func(string) bool {
		// Sampling has finished; only the validator is still running.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		go func() {
			defer cancel()
			cancelled <- h.Cancel(ctx)
		}()
		for h.State() != Cancelling {
			runtime.Gosched()
		}
		return true
	}

	_, err := h.Generate(context.Background(), Request{Prompt: "p"},
		Options{MaxTokens: Ptr(2), Validate: &Validate{Check: check}})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if err := <-cancelled; err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if h.State() != Waiting {
		t.Fatalf("state = %s, want waiting", h.State())
	}
	if model.resetCount() == 0 {
		t.Fatal("cache not cleared on late cancel")
	}
}
