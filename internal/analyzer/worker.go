// Package analyzer runs the downstream analysis workers. A worker claims
// queued jobs, produces a human-readable report for the artifact, and feeds
// the outcome back into the session lifecycle. Workers on different
// instances run concurrently; the queue's claim step and the lifecycle's
// per-record lock keep them from stepping on each other.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/vigil/internal/models"
	"github.com/zulandar/vigil/internal/queue"
	"github.com/zulandar/vigil/internal/session"
)

// DefaultPollInterval is the idle pause between queue polls.
const DefaultPollInterval = 5 * time.Second

// AnalyzeFunc produces a report for one collected artifact and returns the
// report's path. destDir is the session's artifact folder.
type AnalyzeFunc func(ctx context.Context, sess *models.MonitoringSession, fileName, destDir string) (string, error)

// Worker drains the analysis queue for one instance.
type Worker struct {
	Queue     *queue.Queue
	Lifecycle *session.Lifecycle
	WorkerID  string

	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration
	// Analyze overrides the built-in report generator, mainly in tests.
	Analyze AnalyzeFunc
}

// Run polls the queue until ctx is cancelled, processing one job at a time.
func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil || w.Lifecycle == nil {
		return fmt.Errorf("analyzer: queue and lifecycle are required")
	}
	if w.WorkerID == "" {
		return fmt.Errorf("analyzer: workerID is required")
	}

	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		job, err := w.Queue.Claim(ctx, w.WorkerID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("analyzer: %s: claim: %v", w.WorkerID, err)
			}
			sleepWithContext(ctx, interval)
			continue
		}
		w.process(ctx, job)
	}
}

// process runs one claimed job end to end. Every path reports an outcome:
// the job finishes done or failed, and the session record learns either the
// report or the error.
func (w *Worker) process(ctx context.Context, job *models.AnalysisJob) {
	sess, err := w.Lifecycle.GetSession(job.SessionID)
	if err != nil {
		w.fail(ctx, job, fmt.Sprintf("load session: %v", err))
		return
	}

	analyze := w.Analyze
	if analyze == nil {
		analyze = GenerateReport
	}

	destDir := w.Lifecycle.Store.SessionLogsDir(job.SessionID)
	reportPath, err := analyze(ctx, sess, job.FileName, destDir)
	if err != nil {
		w.fail(ctx, job, err.Error())
		return
	}

	if _, err := w.Lifecycle.IngestReport(ctx, job.SessionID, job.FileName, reportPath, nil); err != nil {
		w.fail(ctx, job, fmt.Sprintf("ingest report: %v", err))
		return
	}
	if err := w.Queue.Complete(job.ID); err != nil {
		log.Printf("analyzer: %s: complete job %d: %v", w.WorkerID, job.ID, err)
	}
}

// fail records the failure on both the job and the session record.
func (w *Worker) fail(ctx context.Context, job *models.AnalysisJob, message string) {
	log.Printf("analyzer: %s: job %d (%s/%s): %s", w.WorkerID, job.ID, job.SessionID, job.FileName, message)
	if err := w.Queue.Fail(job.ID, message); err != nil {
		log.Printf("analyzer: %s: fail job %d: %v", w.WorkerID, job.ID, err)
	}
	if _, err := w.Lifecycle.IngestReport(ctx, job.SessionID, job.FileName, "", []string{message}); err != nil {
		log.Printf("analyzer: %s: record error for %s/%s: %v", w.WorkerID, job.SessionID, job.FileName, err)
	}
}

// GenerateReport is the built-in report generator: a single-file web
// archive summarizing the artifact, written next to it as <stem>.mht.
func GenerateReport(_ context.Context, sess *models.MonitoringSession, fileName, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("analyzer: create report folder: %w", err)
	}

	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	reportPath := filepath.Join(destDir, stem+".mht")

	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\n\n")
	b.WriteString("<html><head><title>Analysis report</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", fileName)
	fmt.Fprintf(&b, "<p>Session %s, rule %s, CPU threshold %d%%.</p>\n",
		sess.SessionID, sess.RuleType, sess.CPUThreshold)
	fmt.Fprintf(&b, "<p>Generated %s.</p>\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("</body></html>\n")

	if err := os.WriteFile(reportPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("analyzer: write report: %w", err)
	}
	return reportPath, nil
}

// sleepWithContext pauses for d or until ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
