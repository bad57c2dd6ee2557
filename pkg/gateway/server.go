package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/engine"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/metrics"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Core is the part of the engine the gateway submits commands to.
type Core interface {
	SubmitAdd(ctx context.Context, side orderbook.Side, price decimal.Decimal, qty int64) error
	SubmitCancel(ctx context.Context, side orderbook.Side, price decimal.Decimal, qty int64) engine.CancelResult
}

type Config struct {
	ListenAddr   string
	MaxLineBytes int
	Shards       int
	QueueSize    int
	// OutboxSize bounds the lines waiting to be written to one client. A
	// client that falls that far behind is disconnected.
	OutboxSize int
}

func (c Config) withDefaults() Config {
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = 1024
	}
	if c.Shards <= 0 {
		c.Shards = 16
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10_000
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 1024
	}
	return c
}

type inboundLine struct {
	sess *session
	line string
}

// Server accepts line-protocol clients. Commands of one connection are
// handled in arrival order on the shard keyed by its session id.
type Server struct {
	cfg     Config
	core    Core
	logger  *logging.Logger
	metrics *metrics.Metrics

	listener   net.Listener
	shardQueue *shardqueue.Shardqueue

	sessions sync.Map // session id -> *session
	wg       sync.WaitGroup
	closed   atomic.Bool
}

func NewServer(cfg Config, core Core, logger *logging.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:     cfg,
		core:    core,
		logger:  logger,
		metrics: m,
	}

	s.shardQueue = shardqueue.NewShardQueue(cfg.Shards, cfg.QueueSize)
	s.shardQueue.Start(func(msg interface{}) error {
		if v, ok := msg.(*inboundLine); ok {
			s.handle(v.sess, v.line)
		}
		return nil
	})

	return s
}

// Listen binds the configured address. Use Addr to learn the bound port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.logger.Info(ctx, "gateway listening", zap.String("addr", s.listener.Addr().String()))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				return nil
			}
			s.logger.Error(ctx, "accept failed", zap.Error(err))
			return err
		}

		sess := newSession(ctx, conn, s.logger, s.cfg.OutboxSize)
		s.sessions.Store(sess.id, sess)
		s.metrics.SessionOpened()

		s.wg.Add(1)
		go s.serveSession(sess)
	}
}

// Close stops accepting and disconnects every client.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.sessions.Range(func(_, v any) bool {
		v.(*session).close()
		return true
	})
}

// Broadcast sends the trade lines of a settled round to every client. It
// never blocks on a slow client.
func (s *Server) Broadcast(r *auction.BatchReport) {
	lines := tradeLines(r)
	if len(lines) == 0 {
		return
	}
	s.sessions.Range(func(_, v any) bool {
		sess := v.(*session)
		for _, line := range lines {
			if !sess.send(line) {
				break
			}
		}
		return true
	})
}

func (s *Server) serveSession(sess *session) {
	defer s.wg.Done()
	defer func() {
		sess.close()
		s.sessions.Delete(sess.id)
		s.metrics.SessionClosed()
		sess.logger.Info(sess.ctx, "session closed")
	}()

	sess.logger.Info(sess.ctx, "session opened", zap.String("remote", sess.conn.RemoteAddr().String()))
	go sess.writeLoop()

	scanner := bufio.NewScanner(sess.conn)
	scanner.Buffer(make([]byte, 0, min(4096, s.cfg.MaxLineBytes)), s.cfg.MaxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.shardQueue.Shard(sess.id, &inboundLine{sess: sess, line: line})
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			sess.logger.Warn(sess.ctx, "disconnecting", zap.Error(ErrLineTooLong), zap.Int("max_line_bytes", s.cfg.MaxLineBytes))
		} else if !s.closed.Load() {
			sess.logger.Warn(sess.ctx, "read failed", zap.Error(err))
		}
	}
}

func (s *Server) handle(sess *session, line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		s.metrics.ObserveCommand("PARSE", "malformed")
		sess.logger.Debug(sess.ctx, "malformed command", zap.String("line", line), zap.Error(err))
		sess.send(errorReply(err))
		return
	}

	switch cmd.Type {
	case CommandAdd:
		if err := s.core.SubmitAdd(sess.ctx, cmd.Side, cmd.Price, cmd.Qty); err != nil {
			if errors.Is(err, orderbook.ErrInvalidOrder) {
				err = orderbook.ErrInvalidOrder
			}
			sess.send(errorReply(err))
			return
		}
		sess.send(replyOK)
	case CommandCancel:
		if s.core.SubmitCancel(sess.ctx, cmd.Side, cmd.Price, cmd.Qty) == engine.Found {
			sess.send(replyFound)
		} else {
			sess.send(replyNotFound)
		}
	}
}
