package fixgateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joripage/batch-auction/pkg/gateway"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"go.uber.org/zap"
)

type FixGatewayConfig struct {
	ConfigFilepath string
}

// FixGateway accepts FIX 4.2/4.4 sessions and submits their orders and
// cancels to the engine.
type FixGateway struct {
	cfg      *FixGatewayConfig
	app      *Application
	acceptor *quickfix.Acceptor
	logger   *logging.Logger
}

func NewFixGateway(cfg *FixGatewayConfig, core gateway.Core, logger *logging.Logger) *FixGateway {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FixGateway{
		cfg:    cfg,
		app:    newApplication(core, logger),
		logger: logger,
	}
}

func (s *FixGateway) Start(ctx context.Context) error {
	cfg, err := os.Open(s.cfg.ConfigFilepath)
	if err != nil {
		return fmt.Errorf("error opening %v, %v", s.cfg.ConfigFilepath, err)
	}
	defer cfg.Close() // nolint

	stringData, err := io.ReadAll(cfg)
	if err != nil {
		return fmt.Errorf("error reading cfg: %w", err)
	}

	appSettings, err := quickfix.ParseSettings(bytes.NewReader(stringData))
	if err != nil {
		return fmt.Errorf("error reading cfg: %w", err)
	}

	logFactory, err := file.NewLogFactory(appSettings)
	if err != nil {
		return fmt.Errorf("unable to create fix log factory: %w", err)
	}
	acceptor, err := quickfix.NewAcceptor(s.app, quickfix.NewMemoryStoreFactory(), appSettings, logFactory)
	if err != nil {
		return fmt.Errorf("unable to create acceptor: %w", err)
	}

	if err := acceptor.Start(); err != nil {
		return fmt.Errorf("unable to start FIX acceptor: %w", err)
	}
	s.acceptor = acceptor
	s.logger.Info(ctx, "fix acceptor started", zap.String("config", s.cfg.ConfigFilepath))

	return nil
}

func (s *FixGateway) Stop() {
	if s.acceptor != nil {
		s.acceptor.Stop()
	}
}
