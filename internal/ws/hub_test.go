package ws

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/pkg/logger"
)

type fakeSubscriber struct {
	mu      sync.Mutex
	got     [][]byte
	fail    bool
	closed  bool
	arrived chan struct{}
}

func newFake() *fakeSubscriber {
	return &fakeSubscriber{arrived: make(chan struct{}, 8)}
}

func (f *fakeSubscriber) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("gone")
	}
	f.got = append(f.got, p)
	f.arrived <- struct{}{}
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestHubRoutesByAccount(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	alice, bob := newFake(), newFake()
	hub.Register("alice", alice)
	hub.Register("bob", bob)
	hub.Broadcast("alice", []byte("hi"))

	select {
	case <-alice.arrived:
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the event")
	}
	assert.Equal(t, 1, hub.Subscribers("alice"))
	assert.Empty(t, bob.got)
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	broken := newFake()
	broken.fail = true
	hub.Register("alice", broken)
	hub.Broadcast("alice", []byte("hi"))

	require.Eventually(t, func() bool { return hub.Subscribers("alice") == 0 }, time.Second, 10*time.Millisecond)
	assert.True(t, broken.isClosed())
}

// stuckSubscriber never finishes a write until released.
type stuckSubscriber struct {
	release chan struct{}
	closed  atomic.Bool
}

func (s *stuckSubscriber) Send([]byte) error {
	<-s.release
	return errors.New("released")
}

func (s *stuckSubscriber) Close() { s.closed.Store(true) }

func TestHubStuckSubscriberDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	stuck := &stuckSubscriber{release: make(chan struct{})}
	defer close(stuck.release)
	bob := newFake()
	hub.Register("alice", stuck)
	hub.Register("bob", bob)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Broadcast("alice", []byte("to alice"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked behind a stuck subscriber")
	}

	require.Eventually(t, func() bool {
		hub.Broadcast("bob", []byte("to bob"))
		select {
		case <-bob.arrived:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return hub.Subscribers("alice") == 0 }, time.Second, 10*time.Millisecond)
	assert.True(t, stuck.closed.Load())
}

func TestSSEClientCloseDoesNotWaitForWrite(t *testing.T) {
	client := NewSSEClient(httptest.NewRecorder(), logger.Discard())
	client.mu.Lock()
	closed := make(chan struct{})
	go func() {
		client.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close waited on the write lock")
	}
	client.mu.Unlock()
	assert.ErrorIs(t, client.Send([]byte("x")), io.EOF)
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub()
	sub := newFake()
	hub.Register("alice", sub)
	hub.Close()

	assert.True(t, sub.isClosed())
	assert.Equal(t, 0, hub.Subscribers("alice"))
	hub.Broadcast("alice", []byte("late"))
}

func TestSSEClientFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, logger.Discard())

	require.NoError(t, client.Send([]byte(`{"id":"1"}`)))
	require.NoError(t, client.Heartbeat())
	client.Close()
	assert.Error(t, client.Send([]byte("x")))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: message\ndata: {\"id\":\"1\"}\n\n"))
	assert.Contains(t, body, ": ping\n\n")
}

func TestSSEClientServeStopsWithContext(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Serve(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}
}
