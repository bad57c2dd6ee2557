package fixgateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/joripage/batch-auction/pkg/engine"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitted struct {
	cmd   string
	side  orderbook.Side
	price string
	qty   int64
}

type fakeCore struct {
	calls  []submitted
	addErr error
	cancel engine.CancelResult
}

func (f *fakeCore) SubmitAdd(_ context.Context, side orderbook.Side, price decimal.Decimal, qty int64) error {
	f.calls = append(f.calls, submitted{"ADD", side, price.String(), qty})
	return f.addErr
}

func (f *fakeCore) SubmitCancel(_ context.Context, side orderbook.Side, price decimal.Decimal, qty int64) engine.CancelResult {
	f.calls = append(f.calls, submitted{"CANCEL", side, price.String(), qty})
	return f.cancel
}

type sentMessage struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

func newTestApp(core *fakeCore) (*Application, *[]sentMessage) {
	app := newApplication(core, logging.NewNopLogger())
	var sent []sentMessage
	app.send = func(msg *quickfix.Message, sessionID quickfix.SessionID) error {
		sent = append(sent, sentMessage{msg, sessionID})
		return nil
	}
	return app, &sent
}

var session44 = quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "AUCTION", TargetCompID: "CLIENT"}

func orderMessage(side enum.Side, ordType enum.OrdType, price, qty string) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Body.Set(field.NewClOrdID("c-1"))
	msg.Body.Set(field.NewSymbol("FBA"))
	msg.Body.Set(field.NewSide(side))
	if ordType != "" {
		msg.Body.Set(field.NewOrdType(ordType))
	}
	if price != "" {
		d := decimal.RequireFromString(price)
		msg.Body.Set(field.NewPrice(d, max(0, -d.Exponent())))
	}
	if qty != "" {
		d := decimal.RequireFromString(qty)
		msg.Body.Set(field.NewOrderQty(d, max(0, -d.Exponent())))
	}
	msg.Body.Set(field.NewTransactTime(time.Now()))
	return msg
}

func bodyString(t *testing.T, msg *quickfix.Message, tg quickfix.Tag) string {
	t.Helper()
	v, err := msg.Body.GetString(tg)
	require.Nil(t, err, "tag %d", tg)
	return v
}

func TestReadOrder(t *testing.T) {
	msg := orderMessage(enum.Side_SELL, enum.OrdType_LIMIT, "43.52", "10")
	req, rej := readOrder(&msg.Body, true)
	require.Nil(t, rej)
	assert.Equal(t, "c-1", req.ClOrdID)
	assert.Equal(t, "FBA", req.Symbol)
	assert.Equal(t, orderbook.SELL, req.Side)
	assert.Equal(t, "43.52", req.Price.String())
	assert.EqualValues(t, 10, req.Qty)
}

func TestReadOrderRejects(t *testing.T) {
	cases := []struct {
		name string
		msg  *quickfix.Message
		tag  quickfix.Tag
	}{
		{"market order", orderMessage(enum.Side_BUY, enum.OrdType_MARKET, "10", "1"), tag.OrdType},
		{"unsupported side", orderMessage(enum.Side_SELL_SHORT, enum.OrdType_LIMIT, "10", "1"), tag.Side},
		{"zero price", orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "0", "1"), tag.Price},
		{"negative qty", orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "10", "-1"), tag.OrderQty},
		{"fractional qty", orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "10", "1.5"), tag.OrderQty},
		{"qty above max", orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "10", "4294967296"), tag.OrderQty},
		{"missing price", orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "", "1"), tag.Price},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, rej := readOrder(&tc.msg.Body, true)
			require.NotNil(t, rej)
			require.NotNil(t, rej.RefTagID())
			assert.Equal(t, tc.tag, *rej.RefTagID())
		})
	}
}

func TestNewOrderSingleAck(t *testing.T) {
	core := &fakeCore{}
	app, sent := newTestApp(core)

	msg := orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "51", "10")
	rej := app.onNewOrderSingle(&msg.Body, session44)
	require.Nil(t, rej)

	assert.Equal(t, []submitted{{"ADD", orderbook.BUY, "51", 10}}, core.calls)
	require.Len(t, *sent, 1)
	report := (*sent)[0].msg
	assert.Equal(t, session44, (*sent)[0].sessionID)
	assert.Equal(t, string(enum.ExecType_NEW), bodyString(t, report, tag.ExecType))
	assert.Equal(t, string(enum.OrdStatus_NEW), bodyString(t, report, tag.OrdStatus))
	assert.Equal(t, "c-1", bodyString(t, report, tag.ClOrdID))
	assert.Equal(t, "10", bodyString(t, report, tag.LeavesQty))
}

func TestNewOrderSingleRejectedByEngine(t *testing.T) {
	core := &fakeCore{addErr: fmt.Errorf("%w: price rounds to zero", orderbook.ErrInvalidOrder)}
	app, sent := newTestApp(core)

	msg := orderMessage(enum.Side_BUY, enum.OrdType_LIMIT, "0.001", "10")
	rej := app.onNewOrderSingle(&msg.Body, session44)
	require.NotNil(t, rej)
	assert.Equal(t, tag.Price, *rej.RefTagID())
	assert.Len(t, core.calls, 1)
	assert.Empty(t, *sent)
}

func TestOrderCancelRequest(t *testing.T) {
	core := &fakeCore{cancel: engine.Found}
	app, sent := newTestApp(core)

	msg := orderMessage(enum.Side_SELL, "", "43.52", "10")
	msg.Body.Set(field.NewOrigClOrdID("c-0"))

	require.Nil(t, app.onOrderCancelRequest(&msg.Body, session44))
	require.Len(t, *sent, 1)
	assert.Equal(t, string(enum.ExecType_CANCELED), bodyString(t, (*sent)[0].msg, tag.ExecType))

	core.cancel = engine.NotFound
	require.Nil(t, app.onOrderCancelRequest(&msg.Body, session44))
	require.Len(t, *sent, 2)
	reject := (*sent)[1].msg
	msgType, err := reject.Header.GetString(tag.MsgType)
	require.Nil(t, err)
	assert.Equal(t, string(enum.MsgType_ORDER_CANCEL_REJECT), msgType)
	assert.Equal(t, "c-0", bodyString(t, reject, tag.OrigClOrdID))

	assert.Equal(t, []submitted{
		{"CANCEL", orderbook.SELL, "43.52", 10},
		{"CANCEL", orderbook.SELL, "43.52", 10},
	}, core.calls)
}

func TestExecutionReportFIX42(t *testing.T) {
	req := &orderRequest{ClOrdID: "c-9", Side: orderbook.BUY, Price: decimal.RequireFromString("50.5"), Qty: 3}
	msg := newExecutionReport(quickfix.BeginStringFIX42, req, enum.ExecType_NEW, enum.OrdStatus_NEW)

	assert.Equal(t, string(enum.ExecTransType_NEW), bodyString(t, msg, tag.ExecTransType))
	assert.Equal(t, "50.5", bodyString(t, msg, tag.Price))

	msg = newExecutionReport(quickfix.BeginStringFIX44, req, enum.ExecType_NEW, enum.OrdStatus_NEW)
	assert.False(t, msg.Body.Has(tag.ExecTransType))
}
