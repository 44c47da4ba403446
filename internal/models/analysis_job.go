package models

import "time"

// Analysis job statuses.
const (
	JobQueued  = "queued"
	JobClaimed = "claimed"
	JobDone    = "done"
	JobFailed  = "failed"
)

// AnalysisJob is one queued analysis request for a collected artifact.
// A (session, file) pair is enqueued at most once.
type AnalysisJob struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:32;not null;uniqueIndex:idx_session_file"`
	FileName  string `gorm:"size:256;not null;uniqueIndex:idx_session_file"`
	Status    string `gorm:"size:16;default:queued;index"`
	ClaimedBy string `gorm:"size:64"`
	Error     string `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClaimedAt   *time.Time
	CompletedAt *time.Time
}
