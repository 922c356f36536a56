package domain

import "errors"

var (
	ErrUnknownGroup   = errors.New("unknown group")
	ErrInvalidGroup   = errors.New("invalid group")
	ErrCyclicGroup    = errors.New("cyclic group reference")
	ErrUnknownUnit    = errors.New("unknown unit")
	ErrInvalidValue   = errors.New("invalid value")
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrInvalidEntity  = errors.New("invalid entity")
	ErrInvalidPayload = errors.New("invalid payload")
)
