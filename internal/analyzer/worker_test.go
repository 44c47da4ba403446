package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/vigil/internal/blob"
	"github.com/zulandar/vigil/internal/flock"
	"github.com/zulandar/vigil/internal/models"
	"github.com/zulandar/vigil/internal/queue"
	"github.com/zulandar/vigil/internal/retry"
	"github.com/zulandar/vigil/internal/session"
	"github.com/zulandar/vigil/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *store.Store) {
	t.Helper()

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	st.LockOpts = flock.Options{Interval: time.Millisecond, MaxAttempts: 500}
	st.Retry = retry.Policy{Attempts: 2}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// Pin the pool to one connection: every pooled connection gets its own
	// :memory: database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.AnalysisJob{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	l := session.New(st, &blob.Reconciler{Client: blob.NewFakeClient()})
	w := &Worker{
		Queue:        queue.New(db),
		Lifecycle:    l,
		WorkerID:     "worker-0",
		PollInterval: time.Millisecond,
	}
	return w, st
}

// seedCompleted writes a completed session with the given collected files.
func seedCompleted(t *testing.T, st *store.Store, id string, fileNames ...string) {
	t.Helper()

	sess := &models.MonitoringSession{
		SessionID: id,
		StartDate: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC),
		RuleType:  models.RuleOneTime,
		Mode:      models.ModeCollectKillAnalyze,

		CPUThreshold:   90,
		AnalysisStatus: models.AnalysisInProgress,
	}
	for _, name := range fileNames {
		sess.FilesCollected = append(sess.FilesCollected, models.MonitoringFile{
			FileName:     name,
			RelativePath: "host/Monitoring/Logs/" + id + "/" + name,
		})
	}
	if err := st.WriteCompleted(sess, "test-seed"); err != nil {
		t.Fatalf("seed completed session: %v", err)
	}
}

func TestRun_RequiresCollaborators(t *testing.T) {
	w := &Worker{}
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error with no queue or lifecycle")
	}

	w, _ = newTestWorker(t)
	w.WorkerID = ""
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error with empty workerID")
	}
}

func TestProcess_SuccessCompletesJobAndIngestsReport(t *testing.T) {
	w, st := newTestWorker(t)
	ctx := context.Background()
	seedCompleted(t, st, "250101_120000", "trace.etl")

	if err := w.Queue.Enqueue(ctx, "250101_120000", "trace.etl"); err != nil {
		t.Fatal(err)
	}
	job, err := w.Queue.Claim(ctx, w.WorkerID)
	if err != nil {
		t.Fatal(err)
	}

	w.process(ctx, job)

	sess, err := st.GetCompleted("250101_120000")
	if err != nil {
		t.Fatalf("GetCompleted: %v", err)
	}
	f := sess.FilesCollected[0]
	if f.ReportFile != "trace.mht" {
		t.Errorf("ReportFile = %q, want trace.mht", f.ReportFile)
	}
	if f.ReportFileRelativePath != "Logs/250101_120000/trace.mht" {
		t.Errorf("ReportFileRelativePath = %q", f.ReportFileRelativePath)
	}
	if sess.AnalysisStatus != models.AnalysisCompleted {
		t.Errorf("AnalysisStatus = %q, want completed", sess.AnalysisStatus)
	}

	if _, err := os.Stat(filepath.Join(st.SessionLogsDir("250101_120000"), "trace.mht")); err != nil {
		t.Errorf("report file missing: %v", err)
	}
	if _, err := w.Queue.Claim(ctx, w.WorkerID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("queue should be drained, Claim = %v", err)
	}
}

func TestProcess_AnalyzeFailureRecordsError(t *testing.T) {
	w, st := newTestWorker(t)
	ctx := context.Background()
	seedCompleted(t, st, "250101_120000", "trace.etl")

	w.Analyze = func(context.Context, *models.MonitoringSession, string, string) (string, error) {
		return "", fmt.Errorf("symbol resolution failed")
	}

	if err := w.Queue.Enqueue(ctx, "250101_120000", "trace.etl"); err != nil {
		t.Fatal(err)
	}
	job, err := w.Queue.Claim(ctx, w.WorkerID)
	if err != nil {
		t.Fatal(err)
	}

	w.process(ctx, job)

	sess, err := st.GetCompleted("250101_120000")
	if err != nil {
		t.Fatal(err)
	}
	f := sess.FilesCollected[0]
	if len(f.AnalysisErrors) != 1 || !strings.Contains(f.AnalysisErrors[0], "symbol resolution failed") {
		t.Errorf("AnalysisErrors = %v", f.AnalysisErrors)
	}
	// A failed analysis still counts as a terminal outcome for the file.
	if sess.AnalysisStatus != models.AnalysisCompleted {
		t.Errorf("AnalysisStatus = %q, want completed", sess.AnalysisStatus)
	}
}

func TestProcess_MissingSessionFailsJob(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	if err := w.Queue.Enqueue(ctx, "990101_000000", "ghost.etl"); err != nil {
		t.Fatal(err)
	}
	job, err := w.Queue.Claim(ctx, w.WorkerID)
	if err != nil {
		t.Fatal(err)
	}

	w.process(ctx, job)

	// The job must not be reclaimable: it finished in the failed state.
	if _, err := w.Queue.Claim(ctx, w.WorkerID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Claim after failure = %v, want ErrRecordNotFound", err)
	}
}

func TestRun_DrainsQueueUntilCancelled(t *testing.T) {
	w, st := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedCompleted(t, st, "250101_120000", "a.etl", "b.etl")

	for _, name := range []string{"a.etl", "b.etl"} {
		if err := w.Queue.Enqueue(ctx, "250101_120000", name); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := st.GetCompleted("250101_120000")
		if err == nil && sess.AnalysisStatus == models.AnalysisCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	sess, err := st.GetCompleted("250101_120000")
	if err != nil {
		t.Fatal(err)
	}
	if sess.AnalysisStatus != models.AnalysisCompleted {
		t.Fatalf("AnalysisStatus = %q, want completed", sess.AnalysisStatus)
	}
	for _, f := range sess.FilesCollected {
		if f.ReportFile == "" {
			t.Errorf("%s: no report attached", f.FileName)
		}
	}
}

func TestGenerateReport(t *testing.T) {
	dir := t.TempDir()
	sess := &models.MonitoringSession{SessionID: "250101_120000", RuleType: models.RuleAlwaysOn, CPUThreshold: 85}

	path, err := GenerateReport(context.Background(), sess, "trace.etl", dir)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if filepath.Base(path) != "trace.mht" {
		t.Errorf("report = %q, want trace.mht", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "250101_120000") {
		t.Error("report does not mention the session")
	}
}
