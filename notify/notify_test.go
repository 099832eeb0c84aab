// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitResolvesImmediatelyWhenAlreadyKnown(t *testing.T) {
	f := New[string]()
	f.Notify("a")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx, []string{"a"}))
}

func TestWaitBlocksUntilAllKeysNotified(t *testing.T) {
	f := New[string]()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan error, 1)
	go func() {
		defer wg.Done()
		done <- f.Wait(context.Background(), []string{"a", "b", "c"})
	}()

	f.Notify("a")
	f.Notify("b")

	select {
	case <-done:
		t.Fatal("wait resolved before all keys notified")
	case <-time.After(20 * time.Millisecond):
	}

	f.Notify("c")
	wg.Wait()
	require.NoError(t, <-done)
}

func TestWaitCancelledByContext(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Wait(ctx, []string{"never"}) }()

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestNotifyIsIdempotent(t *testing.T) {
	f := New[string]()
	f.Notify("a")
	f.Notify("a")
	require.True(t, f.IsDone("a"))
}

func TestAbandonedWaiterDoesNotLeakIntoLaterNotify(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Wait(ctx, []string{"a", "b"}) }()
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// A later full notify of the same keys must not panic or double-wake
	// the abandoned waiter's channel.
	f.Notify("a")
	f.Notify("b")
	require.True(t, f.IsDone("a"))
	require.True(t, f.IsDone("b"))
}
