// Package flock implements a cooperative advisory lock backed by a sentinel
// file. It serializes session-record writes across fleet instances sharing a
// network filesystem, where no OS-level locking primitive can be assumed.
// The lock is effective only if all writers honor it.
package flock

import (
	"fmt"
	"log"
	"os"
	"time"
)

const (
	// DefaultInterval is the pause between acquisition attempts.
	DefaultInterval = time.Second
	// DefaultMaxAttempts bounds the acquisition wait; at one attempt per
	// second this is 15 minutes before the holder is presumed dead.
	DefaultMaxAttempts = 900
	// noticeEvery controls how often a still-waiting notice is logged.
	noticeEvery = 120
)

// Lock is a held advisory lock. A nil *Lock is valid and means the lock was
// reclaimed from an orphaned holder: the caller proceeds without a
// guaranteed exclusive section, and Release is a no-op.
type Lock struct {
	path  string
	owner string
}

// Options tune the acquisition loop; zero values select the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

// Acquire blocks until the sentinel file <resourcePath>.lock is created
// exclusively by this caller. If the sentinel cannot be created within the
// attempt budget the holder is treated as orphaned: the sentinel is
// force-removed and nil is returned. Availability is deliberately favored
// over strict mutual exclusion here — a crashed holder must not wedge the
// session forever.
func Acquire(resourcePath, owner string) *Lock {
	return AcquireWithOptions(resourcePath, owner, Options{})
}

// AcquireWithOptions is Acquire with explicit loop settings, used by tests
// and callers with a tighter budget.
func AcquireWithOptions(resourcePath, owner string, opts Options) *Lock {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	path := resourcePath + ".lock"
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if tryCreate(path, owner) {
			return &Lock{path: path, owner: owner}
		}
		if attempt%noticeEvery == 0 {
			log.Printf("flock: %s waiting on %s (%d attempts)", owner, path, attempt)
		}
		time.Sleep(opts.Interval)
	}

	// The holder has been sitting on the lock for the whole budget.
	// Presume it dead, clear the sentinel, and let the caller proceed.
	log.Printf("flock: %s reclaiming orphaned lock %s", owner, path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("flock: remove orphaned %s: %v", path, err)
	}
	return nil
}

// tryCreate atomically creates the sentinel, stamping owner and time for
// post-mortem inspection. Any failure counts as "lock busy".
func tryCreate(path, owner string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	fmt.Fprintf(f, "%s %s\n", owner, time.Now().UTC().Format(time.RFC3339))
	f.Close()
	return true
}

// Release removes the sentinel. Releasing a nil or already-released lock is
// a no-op, tolerating double release and expiry races.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Printf("flock: release %s: %v", l.path, err)
	}
}
