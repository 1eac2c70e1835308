package models

import (
	"errors"
	"fmt"
)

// Error kinds returned across the service boundary. Use errors.Is to classify.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("conflict")
	ErrDataAccess       = errors.New("data access failure")
	ErrValidation       = errors.New("validation failure")
)

// Order state violations, all of kind ErrInvalidState
var (
	ErrAlreadyCompleted        = fmt.Errorf("%w: order already completed", ErrInvalidState)
	ErrAlreadyCancelled        = fmt.Errorf("%w: order already cancelled", ErrInvalidState)
	ErrCannotCancelCompleted   = fmt.Errorf("%w: completed orders cannot be cancelled", ErrInvalidState)
	ErrCannotCompleteCancelled = fmt.Errorf("%w: cancelled orders cannot be completed", ErrInvalidState)
)
