package session

import (
	"context"
	"net"
	"time"

	"cwc/internal/app"
	"cwc/internal/settings"
)

// writerTask owns the write half of a RUNNING session's connection: it
// drains an outbound queue and, when idle for settings.KeepAliveInterval,
// emits a KEEPALIVE frame. Grounded on the teacher's select/ticker
// pattern (session_management.TTLManager.sanitize) rather than the source
// protocol's mutex+TAILQ+condvar, since a buffered channel plus a timer
// is the idiomatic Go equivalent of "queue with a timed wakeup".
type writerTask struct {
	conn        net.Conn
	logger      app.Logger
	queue       chan []byte
	keepAliveFn func() ([]byte, uint16, error)
}

func newWriterTask(conn net.Conn, logger app.Logger, keepAliveFn func() ([]byte, uint16, error)) *writerTask {
	return &writerTask{
		conn:        conn,
		logger:      logger,
		queue:       make(chan []byte, 64),
		keepAliveFn: keepAliveFn,
	}
}

// enqueue schedules a pre-encrypted frame for writing. It never blocks:
// when the queue is full the frame is dropped and the drop is logged.
func (w *writerTask) enqueue(frame []byte) {
	select {
	case w.queue <- frame:
	default:
		if w.logger != nil {
			w.logger.Printf("cwc: writer queue full, dropping frame")
		}
	}
}

func (w *writerTask) run(ctx context.Context) {
	timer := time.NewTimer(settings.KeepAliveInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-w.queue:
			if _, err := w.conn.Write(frame); err != nil {
				if w.logger != nil {
					w.logger.Printf("cwc: write error: %v", err)
				}
				return
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(settings.KeepAliveInterval)
		case <-timer.C:
			if frame, _, err := w.keepAliveFn(); err == nil {
				if _, err := w.conn.Write(frame); err != nil && w.logger != nil {
					w.logger.Printf("cwc: keepalive write error: %v", err)
				}
			}
			timer.Reset(settings.KeepAliveInterval)
		}
	}
}
