package pipeline

import "time"

// SetRetryBackoff shortens the loader retry delay in tests.
func SetRetryBackoff(p *Pipeline, d time.Duration) {
	p.backoff = d
}
