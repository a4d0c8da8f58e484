package health

import "errors"

var (
	ErrCheckTimeout    = errors.New("health: check timed out")
	ErrCheckerNotFound = errors.New("health: no such checker")
)
