package domain

import "time"

// Trade is a single executed fill reported by the market-data gateway.
type Trade struct {
	ID        int64
	Market    string
	Price     float64
	Size      float64
	Side      Side // taker direction
	OrderID   string
	Timestamp time.Time
}
