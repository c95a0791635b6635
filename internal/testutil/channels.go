// Package testutil provides shared helpers for tests of long-running loops.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// WaitForChannel waits for a signal on the channel or fails after timeout.
func WaitForChannel[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
	var zero T
	return zero
}

// StartLoop runs loop in a goroutine with a cancellable context. The
// returned stop function cancels it and asserts that it returns nil
// within ShortTestTimeout.
func StartLoop(t *testing.T, loop func(context.Context) error) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop(ctx) }()

	return func() {
		t.Helper()
		cancel()
		err := WaitForChannel(t, done, ShortTestTimeout, "loop did not stop after cancel")
		require.NoError(t, err)
	}
}
