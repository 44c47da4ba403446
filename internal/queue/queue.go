// Package queue is the DB-backed analysis queue. The lifecycle enqueues one
// job per collected artifact; analyzer workers on any instance claim jobs
// atomically and report outcomes back through the lifecycle.
package queue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/vigil/internal/models"
)

// Queue coordinates analysis jobs through the coordination database.
type Queue struct {
	db *gorm.DB
}

// New returns a Queue over the coordination database.
func New(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue records an analysis request for one artifact. A (session, file)
// pair is enqueued at most once; re-enqueueing is a no-op.
func (q *Queue) Enqueue(ctx context.Context, sessionID, fileName string) error {
	if sessionID == "" {
		return fmt.Errorf("queue: sessionID is required")
	}
	if fileName == "" {
		return fmt.Errorf("queue: fileName is required")
	}

	job := models.AnalysisJob{
		SessionID: sessionID,
		FileName:  fileName,
		Status:    models.JobQueued,
	}
	err := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&job).Error
	if err != nil {
		return fmt.Errorf("queue: enqueue %s/%s: %w", sessionID, fileName, err)
	}
	return nil
}

// Claim atomically takes the oldest queued job for the worker. It uses
// SELECT ... FOR UPDATE SKIP LOCKED where the backend supports it; sqlite
// serializes the transaction instead, preserving correctness at lower
// concurrency. Returns gorm.ErrRecordNotFound when the queue is empty.
func (q *Queue) Claim(ctx context.Context, workerID string) (*models.AnalysisJob, error) {
	if workerID == "" {
		return nil, fmt.Errorf("queue: workerID is required")
	}

	var claimed models.AnalysisJob

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("status = ?", models.JobQueued)
		// sqlite has no row locks; its single-writer transactions
		// serialize claims instead.
		if tx.Dialector.Name() == "mysql" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		result := query.
			Order("created_at ASC, id ASC").
			Limit(1).
			Find(&claimed)

		if result.Error != nil {
			return fmt.Errorf("queue: find queued job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("queue: no queued jobs: %w", gorm.ErrRecordNotFound)
		}

		now := time.Now()
		err := tx.Model(&models.AnalysisJob{}).Where("id = ?", claimed.ID).Updates(map[string]interface{}{
			"status":     models.JobClaimed,
			"claimed_by": workerID,
			"claimed_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("queue: claim job %d: %w", claimed.ID, err)
		}
		claimed.Status = models.JobClaimed
		claimed.ClaimedBy = workerID
		claimed.ClaimedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// Complete marks a claimed job done.
func (q *Queue) Complete(id uint) error {
	return q.finish(id, models.JobDone, "")
}

// Fail marks a claimed job failed, recording the analyzer's error.
func (q *Queue) Fail(id uint, message string) error {
	return q.finish(id, models.JobFailed, message)
}

func (q *Queue) finish(id uint, status, message string) error {
	now := time.Now()
	result := q.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", id, models.JobClaimed).
		Updates(map[string]interface{}{
			"status":       status,
			"error":        message,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("queue: finish job %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("queue: finish job %d: not found or not claimed", id)
	}
	return nil
}

// ReleaseStuck requeues jobs claimed longer ago than age, covering workers
// that died mid-analysis. Returns how many jobs were requeued.
func (q *Queue) ReleaseStuck(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)

	result := q.db.Model(&models.AnalysisJob{}).
		Where("status = ? AND claimed_at < ?", models.JobClaimed, cutoff).
		Updates(map[string]interface{}{
			"status":     models.JobQueued,
			"claimed_by": "",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("queue: release stuck jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
