package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrDuplicate     = errors.New("duplicate opportunity")
	ErrExpired       = errors.New("opportunity expired")
	ErrInvalidState  = errors.New("invalid engine state")
	ErrNoSlot        = errors.New("no execution slot available")
	ErrLegRejected   = errors.New("leg rejected by venue")
	ErrQuoteStale    = errors.New("quote stale")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrEngineStopped = errors.New("engine stopped")
)
