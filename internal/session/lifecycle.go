// Package session implements the monitoring-session lifecycle: the state
// machine carrying a session from Active through Completed, Analyzed and
// Deleted. It is a synchronous, blocking component invoked by the request
// layer; the only concurrency it defends against is peer instances acting
// on the same shared storage, which the store's advisory locks serialize.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zulandar/vigil/internal/blob"
	"github.com/zulandar/vigil/internal/models"
	"github.com/zulandar/vigil/internal/store"
)

// Lifecycle event names emitted to the notifier.
const (
	EventSessionStarted   = "session started"
	EventSessionStopped   = "session stopped"
	EventSessionDeleted   = "session deleted"
	EventAnalysisStarted  = "analysis started"
	EventAnalysisComplete = "analysis completed"
)

// Queue accepts analysis work items, one per collected artifact.
type Queue interface {
	Enqueue(ctx context.Context, sessionID, fileName string) error
}

// Registry lists the names of currently live fleet instances.
type Registry interface {
	ListLive(ctx context.Context) ([]string, error)
}

// Notifier receives lifecycle events. Implementations are best-effort and
// must not block the lifecycle.
type Notifier interface {
	Notify(ctx context.Context, event, sessionID, detail string)
}

// Config holds the tunables fixed at session creation.
type Config struct {
	RuleType          string `json:"ruleType"`
	Mode              string `json:"mode"`
	CPUThreshold      int    `json:"cpuThreshold"`
	MonitorDuration   int    `json:"monitorDuration"`
	ThresholdSeconds  int    `json:"thresholdSeconds"`
	MaxActions        int    `json:"maxActions"`
	ActionsInInterval int    `json:"actionsInInterval"`
	IntervalDays      int    `json:"intervalDays"`
	MaxHours          int    `json:"maxHours"`
}

// Lifecycle orchestrates session state transitions over a shared store,
// the remote artifact mirror, and the analysis queue.
type Lifecycle struct {
	Store    *store.Store
	Blob     *blob.Reconciler
	Queue    Queue
	Registry Registry
	Notifier Notifier

	// Provenance stamped on new sessions.
	BlobHostName    string
	DefaultHostName string

	// Now is the clock; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// New returns a Lifecycle over the given store and reconciler. Queue,
// Registry and Notifier are optional collaborators wired by the caller.
func New(st *store.Store, rec *blob.Reconciler) *Lifecycle {
	return &Lifecycle{Store: st, Blob: rec, Now: time.Now}
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Create validates cfg, derives a session id from the start timestamp and
// persists the new record into the Active area. It fails with a
// ValidationError before any mutation, and with store.ErrConflict if an
// active session already exists.
func (l *Lifecycle) Create(ctx context.Context, cfg Config) (*models.MonitoringSession, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	sess := &models.MonitoringSession{
		SessionID:           now.Format(models.SessionIDLayout),
		StartDate:           now,
		RuleType:            cfg.RuleType,
		Mode:                cfg.Mode,
		CPUThreshold:        cfg.CPUThreshold,
		MonitorDuration:     cfg.MonitorDuration,
		ThresholdSeconds:    cfg.ThresholdSeconds,
		MaxActions:          cfg.MaxActions,
		ActionsInInterval:   cfg.ActionsInInterval,
		IntervalDays:        cfg.IntervalDays,
		MaxHours:            cfg.MaxHours,
		AnalysisStatus:      models.AnalysisNotStarted,
		BlobStorageHostName: l.BlobHostName,
		DefaultHostName:     l.DefaultHostName,
	}
	// An always-on collect-and-analyze session is analyzed continuously as
	// artifacts arrive rather than in one post-hoc pass.
	if cfg.RuleType == models.RuleAlwaysOn && cfg.Mode == models.ModeCollectKillAnalyze {
		sess.AnalysisStatus = models.AnalysisContinuous
	}

	if err := l.Store.CreateActive(sess, "create-session"); err != nil {
		return nil, err
	}
	l.notify(ctx, EventSessionStarted, sess.SessionID,
		fmt.Sprintf("rule=%s mode=%s cpu>=%d%%", sess.RuleType, sess.Mode, sess.CPUThreshold))
	return sess, nil
}

// Stop transitions the active session to Completed: it builds the file
// inventory from the remote mirror, persists the Completed record, moves
// in-progress instance logs into the session's folder and removes the
// Active marker. With no active session Stop succeeds trivially. If the
// filesystem stays read-only past the probe budget, ErrStorageReadOnly is
// returned and the Active record is left for a future retry.
func (l *Lifecycle) Stop(ctx context.Context) error {
	active, err := l.Store.GetActive()
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !l.Store.WaitWritable() {
		return ErrStorageReadOnly
	}

	// Another instance may have raced us here and already written the
	// Completed record; skip re-deriving the inventory in that case. At
	// most one inventory is ever recorded.
	if !l.Store.HasCompleted(active.SessionID) {
		active.EndDate = l.now().UTC()
		active.FilesCollected = l.Blob.CollectFiles(ctx, active, l.localReports(active.SessionID))
		if err := l.Store.WriteCompleted(active, "stop-session"); err != nil {
			return err
		}
		if err := l.Store.MoveActiveLogs(active.SessionID); err != nil {
			log.Printf("session: %s: move live logs: %v", active.SessionID, err)
		}
	}

	// The marker delete is the authoritative end of the Active state: its
	// failure is the operation's failure even though the Completed record
	// may already be written.
	if err := l.Store.DeleteActiveRecord(active.SessionID); err != nil {
		return err
	}
	l.notify(ctx, EventSessionStopped, active.SessionID,
		fmt.Sprintf("%d files collected", len(active.FilesCollected)))
	return nil
}

// localReports lists analysis reports already present in the session's
// artifact folder.
func (l *Lifecycle) localReports(id string) []string {
	reports, err := filepath.Glob(filepath.Join(l.Store.SessionLogsDir(id), "*.mht"))
	if err != nil {
		log.Printf("session: %s: scan local reports: %v", id, err)
		return nil
	}
	return reports
}

// Analyze enqueues an analysis request for every collected file that has
// neither a report nor recorded errors, then marks the session InProgress.
// Enqueueing is fire-and-forget: a queue failure for one file is logged and
// the rest are still submitted.
func (l *Lifecycle) Analyze(ctx context.Context, id string) (*models.MonitoringSession, error) {
	sess, err := l.Store.GetCompleted(id)
	if err != nil {
		return nil, err
	}

	for _, f := range sess.FilesCollected {
		if f.Analyzed() {
			continue
		}
		if l.Queue == nil {
			log.Printf("session: %s: no analysis queue wired, skipping %s", id, f.FileName)
			continue
		}
		if err := l.Queue.Enqueue(ctx, id, f.FileName); err != nil {
			log.Printf("session: %s: enqueue %s: %v", id, f.FileName, err)
		}
	}

	updated, err := l.Store.UpdateCompleted(id, "analyze-session", func(m *models.MonitoringSession) bool {
		if m.AnalysisStatus == models.AnalysisInProgress {
			return false
		}
		m.AnalysisStatus = models.AnalysisInProgress
		return true
	})
	if err != nil {
		return nil, err
	}
	l.notify(ctx, EventAnalysisStarted, id, "")
	return updated, nil
}

// IngestReport attaches an analysis outcome to one collected file and flips
// the session to AnalysisCompleted once no file is left pending. Analysis
// workers for different files of the same session call this concurrently;
// the per-record advisory lock serializes the read-modify-write cycles.
func (l *Lifecycle) IngestReport(ctx context.Context, id, fileName, reportPath string, analysisErrors []string) (*models.MonitoringSession, error) {
	completed := false
	sess, err := l.Store.UpdateCompleted(id, "ingest-report", func(m *models.MonitoringSession) bool {
		changed := false
		for i := range m.FilesCollected {
			f := &m.FilesCollected[i]
			if !strings.EqualFold(f.FileName, fileName) {
				continue
			}
			if reportPath != "" {
				f.ReportFile = filepath.Base(reportPath)
				f.ReportFileRelativePath = path.Join("Logs", id, filepath.Base(reportPath))
				changed = true
			}
			if len(analysisErrors) > 0 {
				f.AnalysisErrors = append(f.AnalysisErrors, analysisErrors...)
				changed = true
			}
			break
		}

		pending := false
		for i := range m.FilesCollected {
			if !m.FilesCollected[i].Analyzed() {
				pending = true
				break
			}
		}
		if !pending && len(m.FilesCollected) > 0 && m.AnalysisStatus != models.AnalysisCompleted {
			m.AnalysisStatus = models.AnalysisCompleted
			completed = true
			changed = true
		}
		return changed
	})
	if err != nil {
		return nil, err
	}
	if completed {
		l.notify(ctx, EventAnalysisComplete, id,
			fmt.Sprintf("%d files analyzed", len(sess.FilesCollected)))
	}
	return sess, nil
}

// Delete removes a completed session: best-effort deletion of the remote
// artifacts at both layouts, then unconditional removal of the local record
// and logs folder. Remote failures never block the local deletion.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	sess, err := l.Store.GetCompleted(id)
	if err != nil {
		return err
	}

	l.Blob.DeleteFilesFromBlob(ctx, sess)

	if err := l.Store.DeleteCompleted(id, "delete-session"); err != nil {
		return err
	}
	l.notify(ctx, EventSessionDeleted, id, "")
	return nil
}

// Terminate is the emergency reset: it unconditionally clears the Active
// area regardless of record validity, recovering from a corrupted or stuck
// session. No Completed record is written.
func (l *Lifecycle) Terminate() error {
	return l.Store.ClearActive()
}

// GetActiveSession returns the in-progress session, or store.ErrNotFound.
func (l *Lifecycle) GetActiveSession() (*models.MonitoringSession, error) {
	return l.Store.GetActive()
}

// GetSession returns the completed session for id, or store.ErrNotFound.
// Only the Completed area is addressed by id.
func (l *Lifecycle) GetSession(id string) (*models.MonitoringSession, error) {
	return l.Store.GetCompleted(id)
}

// GetAllCompletedSessions lists every completed session.
func (l *Lifecycle) GetAllCompletedSessions() ([]*models.MonitoringSession, error) {
	return l.Store.ListCompleted()
}

func (l *Lifecycle) notify(ctx context.Context, event, sessionID, detail string) {
	if l.Notifier == nil {
		return
	}
	l.Notifier.Notify(ctx, event, sessionID, detail)
}
