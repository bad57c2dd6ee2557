package auction

import "errors"

var (
	ErrRoundInFlight = errors.New("clearing round already in flight")
	ErrHalted        = errors.New("auction controller halted")
	ErrTieBreak      = errors.New("unknown tie-break policy")
)
