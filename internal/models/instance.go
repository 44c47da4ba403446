package models

import "time"

// Instance is one live fleet member sharing the session storage namespace.
// Each instance upserts its row at startup and refreshes LastHeartbeat on a
// timer; readers treat a stale heartbeat as departure.
type Instance struct {
	Name          string    `gorm:"primaryKey;size:64"`
	HostName      string    `gorm:"size:128"`
	StartedAt     time.Time
	LastHeartbeat time.Time `gorm:"index"`
}
