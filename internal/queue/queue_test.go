package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/vigil/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func TestEnqueue_RequiredFields(t *testing.T) {
	q := New(openTestDB(t))
	if err := q.Enqueue(context.Background(), "", "trace.etl"); err == nil {
		t.Error("expected error for empty sessionID")
	}
	if err := q.Enqueue(context.Background(), "250101_120000", ""); err == nil {
		t.Error("expected error for empty fileName")
	}
}

func TestEnqueue_DuplicateIsNoOp(t *testing.T) {
	db := openTestDB(t)
	q := New(db)

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(context.Background(), "250101_120000", "trace.etl"); err != nil {
			t.Fatalf("Enqueue #%d: %v", i+1, err)
		}
	}

	var count int64
	db.Model(&models.AnalysisJob{}).Count(&count)
	if count != 1 {
		t.Errorf("jobs = %d, want 1", count)
	}
}

func TestClaim_OldestFirst(t *testing.T) {
	q := New(openTestDB(t))
	ctx := context.Background()

	if err := q.Enqueue(ctx, "250101_120000", "first.etl"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "250101_120000", "second.etl"); err != nil {
		t.Fatal(err)
	}

	job, err := q.Claim(ctx, "worker-0")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job.FileName != "first.etl" {
		t.Errorf("FileName = %q, want first.etl", job.FileName)
	}
	if job.Status != models.JobClaimed || job.ClaimedBy != "worker-0" {
		t.Errorf("job = %+v", job)
	}
}

func TestClaim_EmptyQueue(t *testing.T) {
	q := New(openTestDB(t))
	_, err := q.Claim(context.Background(), "worker-0")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Claim = %v, want ErrRecordNotFound", err)
	}
}

func TestClaim_SkipsClaimedJobs(t *testing.T) {
	q := New(openTestDB(t))
	ctx := context.Background()

	if err := q.Enqueue(ctx, "250101_120000", "only.etl"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Claim(ctx, "worker-0"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Claim(ctx, "worker-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second Claim = %v, want ErrRecordNotFound", err)
	}
}

func TestCompleteAndFail(t *testing.T) {
	db := openTestDB(t)
	q := New(db)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "250101_120000", "a.etl"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "250101_120000", "b.etl"); err != nil {
		t.Fatal(err)
	}

	first, err := q.Claim(ctx, "worker-0")
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Complete(first.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	second, err := q.Claim(ctx, "worker-0")
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Fail(second.ID, "analyzer crashed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	var jobs []models.AnalysisJob
	db.Order("id ASC").Find(&jobs)
	if jobs[0].Status != models.JobDone {
		t.Errorf("first job status = %q", jobs[0].Status)
	}
	if jobs[1].Status != models.JobFailed || jobs[1].Error != "analyzer crashed" {
		t.Errorf("second job = %+v", jobs[1])
	}
}

func TestFinish_RequiresClaimedState(t *testing.T) {
	q := New(openTestDB(t))
	ctx := context.Background()

	if err := q.Enqueue(ctx, "250101_120000", "a.etl"); err != nil {
		t.Fatal(err)
	}
	// Job is still queued, not claimed.
	if err := q.Complete(1); err == nil {
		t.Error("Complete on unclaimed job should fail")
	}
}

func TestReleaseStuck(t *testing.T) {
	db := openTestDB(t)
	q := New(db)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "250101_120000", "stuck.etl"); err != nil {
		t.Fatal(err)
	}
	job, err := q.Claim(ctx, "dead-worker")
	if err != nil {
		t.Fatal(err)
	}

	// Backdate the claim so it counts as stuck.
	old := time.Now().Add(-time.Hour)
	db.Model(&models.AnalysisJob{}).Where("id = ?", job.ID).Update("claimed_at", old)

	released, err := q.ReleaseStuck(30 * time.Minute)
	if err != nil {
		t.Fatalf("ReleaseStuck: %v", err)
	}
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}

	reclaimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("Claim after release: %v", err)
	}
	if reclaimed.FileName != "stuck.etl" || reclaimed.ClaimedBy != "worker-1" {
		t.Errorf("reclaimed = %+v", reclaimed)
	}
}
