// Package retry wraps flaky side-effecting operations with a bounded
// fixed-delay retry loop. Used around filesystem churn where another
// process may briefly hold a file open.
package retry

import (
	"fmt"
	"time"
)

// Defaults observed to ride out transient share hiccups.
const (
	DefaultAttempts = 5
	DefaultDelay    = 5 * time.Second
)

// Policy is a bounded retry: Attempts tries with a fixed Delay between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Default returns the standard file-operation policy.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// Do runs op until it succeeds or attempts are exhausted, sleeping Delay
// between tries. The last failure is returned when all attempts fail.
func (p Policy) Do(op func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(p.Delay)
		}
	}
	return fmt.Errorf("retry: %d attempts exhausted: %w", attempts, err)
}
