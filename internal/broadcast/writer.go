package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	messageBufferSize = 16
)

// ErrWriterClosed is returned by Send after the writer has been stopped.
var ErrWriterClosed = errors.New("client writer closed")

// ClientWriter owns the write side of one WebSocket connection: a buffered
// send channel drained by a dedicated goroutine, write deadlines, ping/pong
// keepalive and an idle timeout. It implements Sender; a full buffer is
// reported to the caller as a send failure once the context expires, so a
// slow client can never block a dispatch loop.
type ClientWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activityMu   sync.Mutex
	lastActivity time.Time
}

func NewClientWriter(conn *websocket.Conn, clock clockwork.Clock) *ClientWriter {
	cw := &ClientWriter{
		conn:         conn,
		clock:        clock,
		sendCh:       make(chan []byte, messageBufferSize),
		done:         make(chan struct{}),
		lastActivity: clock.Now(),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// Send enqueues one payload for delivery. It returns immediately when buffer
// space is available and otherwise waits until the context expires, which
// the caller treats like any other send failure.
func (cw *ClientWriter) Send(ctx context.Context, payload []byte) error {
	select {
	case <-cw.done:
		return ErrWriterClosed
	default:
	}

	select {
	case cw.sendCh <- payload:
		return nil
	case <-cw.done:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cw *ClientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendCh:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			if cw.idleExpired() {
				metrics.WebSocketIdleDisconnects.Inc()
				return
			}
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-cw.done:
			return
		}
	}
}

// Stop terminates the writer and closes the connection.
func (cw *ClientWriter) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

// StopGraceful sends a close frame with reason before closing. The write
// happens after the run goroutine has exited so the connection is never
// written concurrently.
func (cw *ClientWriter) StopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.done)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.conn.Close()
	})
}

func (cw *ClientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.conn.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		cw.recordActivity()
		return nil
	})
}

func (cw *ClientWriter) updateWriteDeadline() {
	_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *ClientWriter) updateReadDeadline() {
	_ = cw.conn.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}

func (cw *ClientWriter) recordActivity() {
	cw.activityMu.Lock()
	defer cw.activityMu.Unlock()
	cw.lastActivity = cw.clock.Now()
}

func (cw *ClientWriter) idleExpired() bool {
	cw.activityMu.Lock()
	defer cw.activityMu.Unlock()
	return cw.clock.Since(cw.lastActivity) >= idleTimeout
}
