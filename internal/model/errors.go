package model

import "errors"

// Rejected operations. Callers compare with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidQuantity        = errors.New("quantity must be a positive integer")
	ErrInsufficientQuantity   = errors.New("insufficient quantity")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotExpired             = errors.New("item has not expired")
	ErrPriceNotSet            = errors.New("price not set")
	ErrInvalidState           = errors.New("invalid state")
)
