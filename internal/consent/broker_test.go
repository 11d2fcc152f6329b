package consent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *PolicyStore {
	t.Helper()
	store, err := OpenPolicyStore(filepath.Join(t.TempDir(), "consent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAlwaysPolicySkipsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set("write_file", PolicyAlways))

	published := 0
	broker := NewBroker(store, func(Request) error {
		published++
		return nil
	})

	ok, err := broker.Require(context.Background(), "write_file", "", "", PolicyAsk)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, published, "always policy must not issue a request round trip")
}

func TestDefaultAlwaysFallback(t *testing.T) {
	store := newTestStore(t)
	broker := NewBroker(store, func(Request) error {
		t.Fatal("unexpected publish")
		return nil
	})

	// Tool registered with defaultConsent "always" and no stored override.
	ok, err := broker.Require(context.Background(), "read_file", "", "", PolicyAlways)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcceptOnceDoesNotPersist(t *testing.T) {
	store := newTestStore(t)
	requests := make(chan Request, 1)
	broker := NewBroker(store, func(r Request) error {
		requests <- r
		return nil
	})

	go func() {
		req := <-requests
		broker.Resolve(req.RequestID, DecisionAcceptOnce)
	}()

	ok, err := broker.Require(context.Background(), "delete_file", "Deletes a file", "a.ts", PolicyAsk)
	require.NoError(t, err)
	assert.True(t, ok)

	policy, err := store.Get("delete_file", PolicyAsk)
	require.NoError(t, err)
	assert.Equal(t, PolicyAsk, policy, "accept-once must not change the stored policy")
}

func TestAcceptAlwaysPersistsAndShortCircuits(t *testing.T) {
	store := newTestStore(t)
	requests := make(chan Request, 1)
	published := 0
	broker := NewBroker(store, func(r Request) error {
		published++
		requests <- r
		return nil
	})

	go func() {
		req := <-requests
		broker.Resolve(req.RequestID, DecisionAcceptAlways)
	}()

	ok, err := broker.Require(context.Background(), "execute_sql", "", "", PolicyAsk)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, published)

	// Second call resolves immediately with no new request.
	ok, err = broker.Require(context.Background(), "execute_sql", "", "", PolicyAsk)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, published, "persisted always policy must skip the round trip")
}

func TestDeclineIsNegativeResultNotError(t *testing.T) {
	store := newTestStore(t)
	requests := make(chan Request, 1)
	broker := NewBroker(store, func(r Request) error {
		requests <- r
		return nil
	})

	go func() {
		req := <-requests
		broker.Resolve(req.RequestID, DecisionDecline)
	}()

	ok, err := broker.Require(context.Background(), "delete_file", "", "", PolicyAsk)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForceResolveAllDeclinesPendingExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	var gotRequest sync.WaitGroup
	gotRequest.Add(1)
	var reqID string
	broker := NewBroker(store, func(r Request) error {
		reqID = r.RequestID
		gotRequest.Done()
		return nil
	})

	done := make(chan bool, 1)
	go func() {
		ok, err := broker.Require(context.Background(), "delete_file", "", "", PolicyAsk)
		require.NoError(t, err)
		done <- ok
	}()

	gotRequest.Wait()
	assert.Equal(t, 1, broker.PendingCount())

	resolved := broker.ForceResolveAll(DecisionDecline)
	assert.Equal(t, 1, resolved)

	select {
	case ok := <-done:
		assert.False(t, ok, "forced resolution must decline")
	case <-time.After(time.Second):
		t.Fatal("pending consent wait leaked after ForceResolveAll")
	}

	// Idempotent: nothing left to resolve, and the late response for the
	// already-resolved id is ignored.
	assert.Zero(t, broker.ForceResolveAll(DecisionDecline))
	assert.False(t, broker.Resolve(reqID, DecisionAcceptOnce))
}

func TestRequireObservesCancellation(t *testing.T) {
	store := newTestStore(t)
	broker := NewBroker(store, func(Request) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	ok, err := broker.Require(ctx, "delete_file", "", "", PolicyAsk)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, broker.PendingCount(), "cancelled request must be removed from the pending map")
}

func TestPolicyStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consent.db")

	store, err := OpenPolicyStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("web_search", PolicyAlways))
	require.NoError(t, store.Close())

	store, err = OpenPolicyStore(path)
	require.NoError(t, err)
	defer store.Close()

	policy, err := store.Get("web_search", PolicyAsk)
	require.NoError(t, err)
	assert.Equal(t, PolicyAlways, policy)
}
