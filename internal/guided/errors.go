package guided

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every flow data error that must block a save.
	ErrValidation    = errors.New("flow validation failed")
	ErrMissingMain   = fmt.Errorf("%w: main flow is missing", ErrValidation)
	ErrDuplicateName = fmt.Errorf("%w: duplicate flow name", ErrValidation)
	ErrCycle         = fmt.Errorf("%w: circular next_flow reference", ErrValidation)

	ErrUnknownMode = errors.New("unknown chat mode")
)
