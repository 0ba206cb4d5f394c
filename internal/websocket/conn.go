package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Conn is one authenticated WebSocket connection. Frames for it are queued
// and written by a single writer goroutine, each write bounded by
// writeTimeout.
type Conn struct {
	ID     uuid.UUID
	UserID int64

	ws           *websocket.Conn
	out          chan []byte
	done         chan struct{}
	stopped      chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newConn(ws *websocket.Conn, userID int64, queueSize int, writeTimeout time.Duration) *Conn {
	return &Conn{
		ID:           uuid.New(),
		UserID:       userID,
		ws:           ws,
		out:          make(chan []byte, queueSize),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Close marks the connection done and starts the close handshake in the
// background, once the writer has flushed what was already queued or
// writeTimeout has passed.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() {
			timer := time.NewTimer(c.writeTimeout)
			defer timer.Stop()

			select {
			case <-c.stopped:
			case <-timer.C:
			}

			if err := c.ws.Close(code, reason); err != nil {
				slog.Debug("close handshake did not complete",
					"conn_id", c.ID.String(),
					"error", err)
			}
		}()
	})
}

// writeLoop drains the queue until the connection is closed. A failed or
// timed-out write calls onDead; coder/websocket closes the connection itself
// when a write context expires. Frames queued before Close are still written.
func (c *Conn) writeLoop(ctx context.Context, onDead func(error)) {
	defer close(c.stopped)

	for {
		select {
		case frame := <-c.out:
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, frame)
			cancel()

			if err != nil {
				onDead(err)
				return
			}

		case <-c.done:
			c.flush(ctx)
			return

		case <-ctx.Done():
			select {
			case <-c.done:
				c.flush(ctx)
			default:
			}
			return
		}
	}
}

// flush writes whatever is still queued, all of it within one writeTimeout.
// It outlives ctx, which is usually cancelled by the same teardown.
func (c *Conn) flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()

	for {
		select {
		case frame := <-c.out:
			if err := c.ws.Write(flushCtx, websocket.MessageText, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
