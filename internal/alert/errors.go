package alert

import "errors"

var (
	ErrNoActiveAlert = errors.New("no active alert")
)
