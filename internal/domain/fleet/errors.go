package fleet

import "errors"

var (
	ErrUnknownDevice = errors.New("device not found")
	ErrMissingKey    = errors.New("record has no identity key")
)
