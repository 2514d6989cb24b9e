package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewCorrelationID returns a short random id used to tie log lines of one
// operation together across server, queue and worker.
func NewCorrelationID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		// gonanoid only fails when the OS entropy source does.
		return "corr-unavailable"
	}
	return id
}
