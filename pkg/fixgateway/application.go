package fixgateway

import (
	"context"
	"errors"

	"github.com/joripage/batch-auction/pkg/engine"
	"github.com/joripage/batch-auction/pkg/gateway"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/orderbook"
	fix42nos "github.com/quickfixgo/fix42/newordersingle"
	fix42ocr "github.com/quickfixgo/fix42/ordercancelrequest"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"go.uber.org/zap"
)

// Application implements the quickfix.Application interface
type Application struct {
	*quickfix.MessageRouter
	core   gateway.Core
	logger *logging.Logger

	// send is replaced in tests
	send func(msg *quickfix.Message, sessionID quickfix.SessionID) error
}

func newApplication(core gateway.Core, logger *logging.Logger) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		core:          core,
		logger:        logger,
		send: func(msg *quickfix.Message, sessionID quickfix.SessionID) error {
			return quickfix.SendToTarget(msg, sessionID)
		},
	}

	app.AddRoute(fix44nos.Route(func(msg fix44nos.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
		return app.onNewOrderSingle(msg.Body, sessionID)
	}))
	app.AddRoute(fix44ocr.Route(func(msg fix44ocr.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
		return app.onOrderCancelRequest(msg.Body, sessionID)
	}))
	app.AddRoute(fix42nos.Route(func(msg fix42nos.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
		return app.onNewOrderSingle(msg.Body, sessionID)
	}))
	app.AddRoute(fix42ocr.Route(func(msg fix42ocr.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
		return app.onOrderCancelRequest(msg.Body, sessionID)
	}))

	return app
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.logger.Info(context.Background(), "fix logon", zap.String("fix_session", sessionID.String()))
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.logger.Info(context.Background(), "fix logout", zap.String("fix_session", sessionID.String()))
}

// ToAdmin implemented as part of Application interface
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp routes synchronously: quickfix delivers one session's messages in
// order, and a MessageRejectError must be returned here to reach the client.
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return a.Route(msg, sessionID)
}

func (a *Application) sessionContext(sessionID quickfix.SessionID) context.Context {
	return a.logger.WithSession(context.Background(), sessionID.String())
}

func (a *Application) onNewOrderSingle(body *quickfix.Body, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	req, rej := readOrder(body, true)
	if rej != nil {
		return rej
	}

	ctx := a.sessionContext(sessionID)
	if err := a.core.SubmitAdd(ctx, req.Side, req.Price, req.Qty); err != nil {
		if errors.Is(err, orderbook.ErrInvalidOrder) {
			// the only value readOrder cannot rule out is a price below one tick
			return quickfix.ValueIsIncorrect(tag.Price)
		}
		a.logger.Error(ctx, "add failed", zap.Error(err))
		return quickfix.NewMessageRejectError(err.Error(), 0, nil)
	}

	a.reply(ctx, newExecutionReport(sessionID.BeginString, req, enum.ExecType_NEW, enum.OrdStatus_NEW), sessionID)
	return nil
}

func (a *Application) onOrderCancelRequest(body *quickfix.Body, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	req, rej := readOrder(body, false)
	if rej != nil {
		return rej
	}

	ctx := a.sessionContext(sessionID)
	if a.core.SubmitCancel(ctx, req.Side, req.Price, req.Qty) == engine.Found {
		a.reply(ctx, newExecutionReport(sessionID.BeginString, req, enum.ExecType_CANCELED, enum.OrdStatus_CANCELED), sessionID)
	} else {
		a.reply(ctx, newCancelReject(sessionID.BeginString, req), sessionID)
	}
	return nil
}

func (a *Application) reply(ctx context.Context, msg *quickfix.Message, sessionID quickfix.SessionID) {
	if err := a.send(msg, sessionID); err != nil {
		a.logger.Warn(ctx, "fix send failed", zap.Error(err))
	}
}
