// Package clock maps a stored auction end instant to remaining time. Pure
// functions only; the coordinator owns the actual time source.
package clock

import (
	"time"
)

// Remaining returns how long is left until endsAt, floored at zero.
func Remaining(endsAt, now time.Time) time.Duration {
	d := endsAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired reports whether the auction clock has run out.
func IsExpired(endsAt, now time.Time) bool {
	return !now.Before(endsAt)
}
