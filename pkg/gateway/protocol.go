package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/shopspring/decimal"
)

type CommandType string

const (
	CommandAdd    CommandType = "ADD"
	CommandCancel CommandType = "CANCEL"
)

// Command is one decoded protocol line:
//
//	ADD,<BUY|SELL>,<price>,<quantity>
//	CANCEL,<BUY|SELL>,<price>,<quantity>
type Command struct {
	Type  CommandType
	Side  orderbook.Side
	Price decimal.Decimal
	Qty   int64
}

const (
	replyOK       = "OK"
	replyFound    = "FOUND"
	replyNotFound = "NOT_FOUND"
	replyErr      = "ERR"
	tradePrefix   = "TRADE"
)

// ParseCommand checks syntax only. Sign and range of price and quantity are
// left to the engine.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Command{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedCommand, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var cmd Command
	switch t := CommandType(fields[0]); t {
	case CommandAdd, CommandCancel:
		cmd.Type = t
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrMalformedCommand, fields[0])
	}

	cmd.Side = orderbook.Side(fields[1])
	if !cmd.Side.Valid() {
		return Command{}, fmt.Errorf("%w: unknown side %q", ErrMalformedCommand, fields[1])
	}

	price, err := decimal.NewFromString(fields[2])
	if err != nil {
		return Command{}, fmt.Errorf("%w: price %q", ErrMalformedCommand, fields[2])
	}
	cmd.Price = price

	qty, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("%w: quantity %q", ErrMalformedCommand, fields[3])
	}
	cmd.Qty = qty

	return cmd, nil
}

func (c Command) String() string {
	return fmt.Sprintf("%s,%s,%s,%d", c.Type, c.Side, c.Price, c.Qty)
}

func errorReply(err error) string {
	return replyErr + "," + err.Error()
}

// tradeLines renders one TRADE line per trade event of the report.
func tradeLines(r *auction.BatchReport) []string {
	lines := make([]string, 0, len(r.Trades))
	for _, t := range r.Trades {
		lines = append(lines, fmt.Sprintf("%s,%s,%d,%d", tradePrefix, t.Price, t.Qty, t.Qty))
	}
	return lines
}
