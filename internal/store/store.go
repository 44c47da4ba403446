// Package store translates session identity and lifecycle state into a
// deterministic location under one shared base root and provides record
// read/write/list/delete. The root holds an Active area (at most one
// in-progress record plus transient per-instance logs), a Completed area
// (one record per finished session), and per-session artifact folders.
// Writes are serialized with advisory lock files colocated with the area
// they protect; reads are lock-free and may observe a record mid-replace,
// which is accepted for display paths.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/zulandar/vigil/internal/flock"
	"github.com/zulandar/vigil/internal/models"
	"github.com/zulandar/vigil/internal/retry"
)

// Area directory names under the base root.
const (
	activeDir    = "Active"
	completedDir = "Completed"
	logsDir      = "Logs"
)

// Writability probe defaults: six probes ten seconds apart.
const (
	DefaultWaitAttempts = 6
	DefaultWaitInterval = 10 * time.Second
)

var (
	// ErrConflict is returned when the Active area already holds a record.
	ErrConflict = errors.New("store: an active session already exists")
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("store: session not found")
)

// Store is a directory-addressed session record store.
type Store struct {
	root string

	// LockOpts tunes advisory-lock acquisition; zero selects the
	// package defaults. Tests tighten it to keep runs fast.
	LockOpts flock.Options
	// Retry wraps individual file moves.
	Retry retry.Policy
	// WaitAttempts and WaitInterval bound the writability probe.
	WaitAttempts int
	WaitInterval time.Duration
}

// New creates the area directories under root and returns a Store.
func New(root string) (*Store, error) {
	for _, dir := range []string{activeDir, completedDir, logsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s area: %w", dir, err)
		}
	}
	return &Store{
		root:         root,
		Retry:        retry.Default(),
		WaitAttempts: DefaultWaitAttempts,
		WaitInterval: DefaultWaitInterval,
	}, nil
}

// Root returns the base root directory.
func (s *Store) Root() string { return s.root }

// ActivePath returns the Active-area record path for a session id.
func (s *Store) ActivePath(id string) string {
	return filepath.Join(s.root, activeDir, id+".json")
}

// CompletedPath returns the Completed-area record path for a session id.
func (s *Store) CompletedPath(id string) string {
	return filepath.Join(s.root, completedDir, id+".json")
}

// SessionLogsDir returns the artifact folder for a session id.
func (s *Store) SessionLogsDir(id string) string {
	return filepath.Join(s.root, logsDir, id)
}

// activeArea returns the Active directory; its advisory lock sentinel is
// colocated next to it as Active.lock.
func (s *Store) activeArea() string {
	return filepath.Join(s.root, activeDir)
}

// GetActive returns the in-progress session, or ErrNotFound if the Active
// area is empty. The Active area is addressed by presence, not by id: at
// most one record ever lives there.
func (s *Store) GetActive() (*models.MonitoringSession, error) {
	matches, err := filepath.Glob(filepath.Join(s.activeArea(), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("store: scan active area: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sess, err := readRecord(matches[0])
	if err != nil {
		return nil, fmt.Errorf("store: active record: %w", err)
	}
	return sess, nil
}

// HasActive reports whether any record is present in the Active area.
func (s *Store) HasActive() (bool, error) {
	matches, err := filepath.Glob(filepath.Join(s.activeArea(), "*.json"))
	if err != nil {
		return false, fmt.Errorf("store: scan active area: %w", err)
	}
	return len(matches) > 0, nil
}

// CreateActive persists a new session record into the Active area under the
// area lock. It fails with ErrConflict if a record is already present; the
// presence check and the write share one lock window, but Create remains a
// rare operator action and the residual check/write race is accepted.
func (s *Store) CreateActive(sess *models.MonitoringSession, owner string) error {
	lock := flock.AcquireWithOptions(s.activeArea(), owner, s.LockOpts)
	defer lock.Release()

	exists, err := s.HasActive()
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}

	// Clear stray non-record leftovers (orphaned logs from a terminated
	// session) before the area takes a new record.
	s.clearActiveStray()

	if err := writeRecord(s.ActivePath(sess.SessionID), sess); err != nil {
		return fmt.Errorf("store: write active record: %w", err)
	}
	return nil
}

// DeleteActiveRecord removes the Active-area marker for the given id.
func (s *Store) DeleteActiveRecord(id string) error {
	if err := os.Remove(s.ActivePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete active record %s: %w", id, err)
	}
	return nil
}

// ClearActive unconditionally empties the Active area, valid records
// included. Used by Terminate to recover from a corrupted or stuck session.
func (s *Store) ClearActive() error {
	entries, err := os.ReadDir(s.activeArea())
	if err != nil {
		return fmt.Errorf("store: clear active area: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.activeArea(), e.Name())); err != nil {
			return fmt.Errorf("store: clear active area: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// clearActiveStray removes everything from the Active area except session
// records. Best-effort: failures are logged, not returned.
func (s *Store) clearActiveStray() {
	entries, err := os.ReadDir(s.activeArea())
	if err != nil {
		log.Printf("store: scan active area: %v", err)
		return
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" || filepath.Ext(e.Name()) == ".lock" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.activeArea(), e.Name())); err != nil {
			log.Printf("store: clear stray %s: %v", e.Name(), err)
		}
	}
}

// GetCompleted returns the Completed-area record for id, or ErrNotFound.
func (s *Store) GetCompleted(id string) (*models.MonitoringSession, error) {
	sess, err := readRecord(s.CompletedPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: completed record %s: %w", id, err)
	}
	return sess, nil
}

// HasCompleted reports whether a Completed record exists for id.
func (s *Store) HasCompleted(id string) bool {
	_, err := os.Stat(s.CompletedPath(id))
	return err == nil
}

// WriteCompleted replaces the Completed-area record for the session under
// its per-record lock. Records are always written whole, never patched in
// place.
func (s *Store) WriteCompleted(sess *models.MonitoringSession, owner string) error {
	lock := flock.AcquireWithOptions(s.CompletedPath(sess.SessionID), owner, s.LockOpts)
	defer lock.Release()
	if err := writeRecord(s.CompletedPath(sess.SessionID), sess); err != nil {
		return fmt.Errorf("store: write completed record: %w", err)
	}
	return nil
}

// UpdateCompleted runs a read-modify-write cycle on the Completed record for
// id under its per-record lock, making concurrent field updates from
// independent workers safe. The mutate callback receives the freshly read
// record and returns whether it changed.
func (s *Store) UpdateCompleted(id, owner string, mutate func(*models.MonitoringSession) bool) (*models.MonitoringSession, error) {
	lock := flock.AcquireWithOptions(s.CompletedPath(id), owner, s.LockOpts)
	defer lock.Release()

	sess, err := s.GetCompleted(id)
	if err != nil {
		return nil, err
	}
	if !mutate(sess) {
		return sess, nil
	}
	if err := writeRecord(s.CompletedPath(id), sess); err != nil {
		return nil, fmt.Errorf("store: update completed record %s: %w", id, err)
	}
	return sess, nil
}

// ListCompleted enumerates every Completed record. Per-file read failures
// are logged and skipped so one corrupted record cannot hide the rest.
func (s *Store) ListCompleted() ([]*models.MonitoringSession, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, completedDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("store: scan completed area: %w", err)
	}
	sessions := make([]*models.MonitoringSession, 0, len(matches))
	for _, path := range matches {
		sess, err := readRecord(path)
		if err != nil {
			log.Printf("store: skip unreadable record %s: %v", path, err)
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// DeleteCompleted removes the Completed record for id and the session's
// artifact folder with its contents. The removal runs under the record's
// advisory lock so an in-flight UpdateCompleted cannot re-write the record
// after it is gone.
func (s *Store) DeleteCompleted(id, owner string) error {
	lock := flock.AcquireWithOptions(s.CompletedPath(id), owner, s.LockOpts)
	defer lock.Release()

	if err := os.Remove(s.CompletedPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete completed record %s: %w", id, err)
	}
	if err := os.RemoveAll(s.SessionLogsDir(id)); err != nil {
		return fmt.Errorf("store: delete logs folder %s: %w", id, err)
	}
	return nil
}

// ActiveLogPath returns the transient live-log path for a fleet instance.
func (s *Store) ActiveLogPath(instance string) string {
	return filepath.Join(s.activeArea(), instance+".log")
}

// ActiveLogFiles lists the transient per-instance log files currently in
// the Active area.
func (s *Store) ActiveLogFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.activeArea(), "*.log"))
	if err != nil {
		return nil, fmt.Errorf("store: scan active logs: %w", err)
	}
	return matches, nil
}

// MoveActiveLogs moves in-progress log files from the Active area into the
// session's artifact folder. Each move runs under the retry policy;
// individual failures are logged and the remaining files still move.
func (s *Store) MoveActiveLogs(id string) error {
	files, err := s.ActiveLogFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	dest := s.SessionLogsDir(id)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("store: create logs folder %s: %w", id, err)
	}
	for _, src := range files {
		target := filepath.Join(dest, filepath.Base(src))
		err := s.Retry.Do(func() error {
			return os.Rename(src, target)
		})
		if err != nil {
			log.Printf("store: move %s: %v", src, err)
		}
	}
	return nil
}

// WaitWritable probes whether the base root accepts writes, retrying on a
// fixed cadence. It returns false once the probe budget is exhausted; the
// filesystem may be mounted read-only during a platform sync.
func (s *Store) WaitWritable() bool {
	attempts := s.WaitAttempts
	if attempts <= 0 {
		attempts = DefaultWaitAttempts
	}
	interval := s.WaitInterval
	if interval <= 0 {
		interval = DefaultWaitInterval
	}

	probe := filepath.Join(s.root, ".writeprobe")
	for i := 0; i < attempts; i++ {
		if err := os.WriteFile(probe, []byte("probe"), 0o644); err == nil {
			os.Remove(probe)
			return true
		}
		if i < attempts-1 {
			time.Sleep(interval)
		}
	}
	return false
}

// readRecord reads and decodes one session record. Callers translate
// os.IsNotExist as appropriate for their area.
func readRecord(path string) (*models.MonitoringSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess models.MonitoringSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &sess, nil
}

// writeRecord encodes and replaces one session record whole.
func writeRecord(path string, sess *models.MonitoringSession) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", sess.SessionID, err)
	}
	return os.WriteFile(path, data, 0o644)
}
