package app

import "time"

// TimeoutReader is the read_with_timeout collaborator: a bounded read that
// fails rather than blocking forever when the peer goes silent.
type TimeoutReader interface {
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
}
