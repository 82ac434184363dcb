package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidSide           = errors.New("invalid side")
	ErrWSDisconnect          = errors.New("websocket disconnected")
	ErrContextDone           = errors.New("context cancelled")
)
