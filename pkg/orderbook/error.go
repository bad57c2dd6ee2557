package orderbook

import "errors"

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrImpossibleFill = errors.New("impossible fill")
)
