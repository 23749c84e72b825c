package network

import (
	"time"

	"golang.org/x/time/rate"
)

// Telegram does not publish fixed rate tiers; flood-wait errors are the only
// authoritative signal, and the transport middleware handles those.  The
// limiter here is proactive pacing for list requests, so that a long
// enumeration does not trip the server in the first place.

// NewLimiter returns a limiter that admits perMinute events per minute with
// the given burst.  A burst of 0 is bumped to 1, otherwise Wait would never
// admit anything.
func NewLimiter(perMinute int, burst uint) *rate.Limiter {
	if burst == 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(every(perMinute)), int(burst))
}

func every(perMinute int) time.Duration {
	if perMinute <= 0 {
		return 0 // no throttling
	}
	return time.Minute / time.Duration(perMinute)
}
