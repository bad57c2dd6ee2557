package gateway

import "errors"

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrLineTooLong      = errors.New("line too long")
)
