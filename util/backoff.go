package util

import (
	"math/rand/v2"
	"time"
)

const maxBackoffShift = 8

// Backoff doubles base for every attempt, up to 2^8 times base, and picks a
// random duration in [d/2, d] of the result.
func Backoff(base time.Duration, attempt uint) time.Duration {
	d := base << min(attempt, maxBackoffShift)
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(d-half+1)
}
