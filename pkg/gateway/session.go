package gateway

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/joripage/batch-auction/pkg/logging"
	"go.uber.org/zap"
)

type session struct {
	id     string
	conn   net.Conn
	ctx    context.Context
	logger *logging.Logger

	outbox    chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(ctx context.Context, conn net.Conn, logger *logging.Logger, outboxSize int) *session {
	id := logging.NewSessionID()
	ctx = logger.WithSession(ctx, id)
	return &session{
		id:     id,
		conn:   conn,
		ctx:    ctx,
		logger: logger.FromContext(ctx),
		outbox: make(chan string, outboxSize),
		done:   make(chan struct{}),
	}
}

// send queues a line for the client. It reports false once the session is
// closed; a full outbox closes the session.
func (s *session) send(line string) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.outbox <- line:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn(s.ctx, "client too slow, disconnecting", zap.Int("outbox", cap(s.outbox)))
		s.close()
		return false
	}
}

func (s *session) writeLoop() {
	w := bufio.NewWriter(s.conn)
	for {
		select {
		case <-s.done:
			return
		case line := <-s.outbox:
			if !s.write(w, line) {
				return
			}
			// drain what is already queued before flushing
			for n := len(s.outbox); n > 0; n-- {
				if !s.write(w, <-s.outbox) {
					return
				}
			}
			if err := w.Flush(); err != nil {
				s.logger.Debug(s.ctx, "write failed", zap.Error(err))
				s.close()
				return
			}
		}
	}
}

func (s *session) write(w *bufio.Writer, line string) bool {
	if _, err := w.WriteString(line + "\n"); err != nil {
		s.logger.Debug(s.ctx, "write failed", zap.Error(err))
		s.close()
		return false
	}
	return true
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
