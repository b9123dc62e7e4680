package service

import "errors"

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrNotFound                  = errors.New("not found")
	ErrDuplicateOrderName        = errors.New("order name already in use")
	ErrDuplicateWatchReservation = errors.New("watch already reserved by an active order")
	ErrInvalidStateTransition    = errors.New("illegal transition of order status")
	ErrUpstreamUnavailable       = errors.New("collaborator service unavailable, retry later")
)
