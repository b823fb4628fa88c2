package stream

import "errors"

var (
	ErrMissingCredentials = errors.New("stream credentials are missing")
	ErrAlreadyOpen        = errors.New("stream connection already opened")
	ErrMalformedFrame     = errors.New("malformed stream frame")
	ErrConnClosed         = errors.New("stream connection closed")
)
