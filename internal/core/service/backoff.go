package service

import (
	"math"
	"time"
)

// Backoff grows the wait between polls geometrically up to Max. A Multiplier
// of 1 or less keeps the interval constant; a zero Max means no ceiling.
type Backoff struct {
	Multiplier float64
	Max        time.Duration
}

func ConstantBackoff() Backoff {
	return Backoff{Multiplier: 1}
}

// Next returns the interval to use after d. It never returns less than d, so
// a poll interval above the ceiling is kept as is.
func (b Backoff) Next(d time.Duration) time.Duration {
	if b.Multiplier <= 1 {
		return d
	}
	next := d
	if grown := float64(d) * b.Multiplier; grown < math.MaxInt64 {
		next = time.Duration(grown)
	}
	if b.Max > 0 && next > b.Max {
		if d > b.Max {
			return d
		}
		return b.Max
	}
	return next
}
