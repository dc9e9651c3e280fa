package syncer

import "time"

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

// RetryDelay returns the wait before the next attempt, given how many
// attempts for the line have already failed: 1s, 2s, 4s, ... capped at 30s.
func RetryDelay(failures int) time.Duration {
	d := baseRetryDelay
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
