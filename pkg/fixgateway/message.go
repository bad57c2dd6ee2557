package fixgateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

// resting orders carry no client-visible id
const noOrderID = "NONE"

var sideMapping = map[enum.Side]orderbook.Side{
	enum.Side_BUY:  orderbook.BUY,
	enum.Side_SELL: orderbook.SELL,
}

var reverseSideMapping = map[orderbook.Side]enum.Side{
	orderbook.BUY:  enum.Side_BUY,
	orderbook.SELL: enum.Side_SELL,
}

// orderRequest is the part of a NewOrderSingle or OrderCancelRequest the
// engine understands, for both FIX 4.2 and 4.4.
type orderRequest struct {
	ClOrdID     string
	OrigClOrdID string
	Symbol      string
	Side        orderbook.Side
	Price       decimal.Decimal
	Qty         int64
}

// readOrder extracts an order request from a message body. New orders must
// be limit orders; cancels carry the limit price of the order to remove.
func readOrder(body *quickfix.Body, requireLimit bool) (*orderRequest, quickfix.MessageRejectError) {
	req := &orderRequest{}

	clOrdID, err := body.GetString(tag.ClOrdID)
	if err != nil {
		return nil, err
	}
	req.ClOrdID = clOrdID
	req.OrigClOrdID, _ = body.GetString(tag.OrigClOrdID)
	req.Symbol, _ = body.GetString(tag.Symbol)

	if requireLimit {
		ordType, err := body.GetString(tag.OrdType)
		if err != nil {
			return nil, err
		}
		if enum.OrdType(ordType) != enum.OrdType_LIMIT {
			return nil, quickfix.ValueIsIncorrect(tag.OrdType)
		}
	}

	side, err := body.GetString(tag.Side)
	if err != nil {
		return nil, err
	}
	s, ok := sideMapping[enum.Side(side)]
	if !ok {
		return nil, quickfix.ValueIsIncorrect(tag.Side)
	}
	req.Side = s

	var price quickfix.FIXDecimal
	if err := body.GetField(tag.Price, &price); err != nil {
		return nil, err
	}
	if !price.Decimal.IsPositive() {
		return nil, quickfix.ValueIsIncorrect(tag.Price)
	}
	req.Price = price.Decimal

	var qty quickfix.FIXDecimal
	if err := body.GetField(tag.OrderQty, &qty); err != nil {
		return nil, err
	}
	if !qty.Decimal.IsPositive() || !qty.Decimal.IsInteger() || !qty.Decimal.LessThanOrEqual(decimal.NewFromInt(orderbook.MaxQty)) {
		return nil, quickfix.ValueIsIncorrect(tag.OrderQty)
	}
	req.Qty = qty.Decimal.IntPart()

	return req, nil
}

func newExecutionReport(beginString string, req *orderRequest, execType enum.ExecType, status enum.OrdStatus) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.Set(field.NewBeginString(beginString))
	msg.Header.Set(field.NewMsgType(enum.MsgType_EXECUTION_REPORT))

	qty := decimal.NewFromInt(req.Qty)
	leaves := qty
	if status != enum.OrdStatus_NEW {
		leaves = decimal.Zero
	}

	msg.Body.Set(field.NewOrderID(noOrderID))
	msg.Body.Set(field.NewExecID(uuid.New().String()))
	if beginString == quickfix.BeginStringFIX42 {
		msg.Body.Set(field.NewExecTransType(enum.ExecTransType_NEW))
	}
	msg.Body.Set(field.NewExecType(execType))
	msg.Body.Set(field.NewOrdStatus(status))
	msg.Body.Set(field.NewClOrdID(req.ClOrdID))
	if req.OrigClOrdID != "" {
		msg.Body.Set(field.NewOrigClOrdID(req.OrigClOrdID))
	}
	if req.Symbol != "" {
		msg.Body.Set(field.NewSymbol(req.Symbol))
	}
	msg.Body.Set(field.NewSide(reverseSideMapping[req.Side]))
	msg.Body.Set(field.NewPrice(req.Price, max(0, -req.Price.Exponent())))
	msg.Body.Set(field.NewOrderQty(qty, 0))
	msg.Body.Set(field.NewLeavesQty(leaves, 0))
	msg.Body.Set(field.NewCumQty(decimal.Zero, 0))
	msg.Body.Set(field.NewAvgPx(decimal.Zero, 0))
	msg.Body.Set(field.NewTransactTime(time.Now().UTC()))

	return msg
}

func newCancelReject(beginString string, req *orderRequest) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.Set(field.NewBeginString(beginString))
	msg.Header.Set(field.NewMsgType(enum.MsgType_ORDER_CANCEL_REJECT))

	msg.Body.Set(field.NewOrderID(noOrderID))
	msg.Body.Set(field.NewClOrdID(req.ClOrdID))
	msg.Body.Set(field.NewOrigClOrdID(req.OrigClOrdID))
	msg.Body.Set(field.NewOrdStatus(enum.OrdStatus_REJECTED))
	msg.Body.Set(field.NewCxlRejResponseTo(enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST))
	msg.Body.Set(field.NewCxlRejReason(enum.CxlRejReason_UNKNOWN_ORDER))
	msg.Body.Set(field.NewText("no matching resting order"))

	return msg
}
