package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// SSEClient streams Server-Sent Events over an HTTP response writer.
type SSEClient struct {
	mu     sync.Mutex
	writer io.Writer
	ctrl   *http.ResponseController
	log    *slog.Logger
	closed atomic.Bool
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(w http.ResponseWriter, logger *slog.Logger) *SSEClient {
	return &SSEClient{writer: w, ctrl: http.NewResponseController(w), log: logger}
}

// Send emits a message event.
func (c *SSEClient) Send(payload []byte) error {
	return c.write("event: message\ndata: %s\n\n", payload)
}

// Heartbeat emits a comment frame to keep intermediaries from timing out.
func (c *SSEClient) Heartbeat() error {
	return c.write(": ping\n\n")
}

// write bounds every frame by writeWait so a reader that stopped draining
// fails the write instead of holding it forever.
func (c *SSEClient) write(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return io.EOF
	}
	if err := c.ctrl.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.closed.Store(true)
		return err
	}
	if _, err := fmt.Fprintf(c.writer, format, args...); err != nil {
		c.closed.Store(true)
		c.log.Warn("sse write failed", "error", err)
		return err
	}
	if err := c.ctrl.Flush(); err != nil {
		c.closed.Store(true)
		c.log.Warn("sse flush failed", "error", err)
		return err
	}
	return nil
}

// Close marks the stream as closed. It does not wait for an in-flight write.
func (c *SSEClient) Close() {
	c.closed.Store(true)
}

// Serve sends heartbeats every interval until ctx ends or a write fails.
func (c *SSEClient) Serve(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Heartbeat(); err != nil {
				return
			}
		}
	}
}
