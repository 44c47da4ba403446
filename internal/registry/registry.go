// Package registry tracks which fleet instances are live. Each instance
// upserts its row at startup and refreshes a heartbeat on a timer; a row
// whose heartbeat falls behind the liveness window counts as departed.
package registry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/vigil/internal/models"
)

const (
	// DefaultHeartbeatInterval is the pause between heartbeat updates.
	DefaultHeartbeatInterval = 10 * time.Second
	// DefaultLivenessWindow is how stale a heartbeat may be before the
	// instance is considered gone.
	DefaultLivenessWindow = 90 * time.Second
)

// Registry is the DB-backed liveness registry of fleet instances.
type Registry struct {
	db *gorm.DB

	// Window overrides DefaultLivenessWindow when positive.
	Window time.Duration
}

// New returns a Registry over the coordination database.
func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultLivenessWindow
}

// Register creates or refreshes the row for an instance.
func (r *Registry) Register(name, hostName string) error {
	if name == "" {
		return fmt.Errorf("registry: instance name is required")
	}

	now := time.Now()
	inst := models.Instance{
		Name:          name,
		HostName:      hostName,
		StartedAt:     now,
		LastHeartbeat: now,
	}

	var existing models.Instance
	result := r.db.Where("name = ?", name).First(&existing)
	if result.Error != nil {
		if err := r.db.Create(&inst).Error; err != nil {
			return fmt.Errorf("registry: register %s: %w", name, err)
		}
		return nil
	}

	err := r.db.Model(&models.Instance{}).Where("name = ?", name).Updates(map[string]interface{}{
		"host_name":      hostName,
		"started_at":     now,
		"last_heartbeat": now,
	}).Error
	if err != nil {
		return fmt.Errorf("registry: refresh %s: %w", name, err)
	}
	return nil
}

// Deregister removes the row for an instance.
func (r *Registry) Deregister(name string) error {
	if err := r.db.Where("name = ?", name).Delete(&models.Instance{}).Error; err != nil {
		return fmt.Errorf("registry: deregister %s: %w", name, err)
	}
	return nil
}

// StartHeartbeat launches a goroutine that periodically refreshes the
// instance's heartbeat. The returned channel receives an error if the row
// disappears or an update fails; the goroutine exits when ctx is cancelled.
func (r *Registry) StartHeartbeat(ctx context.Context, name string, interval time.Duration) <-chan error {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	errCh := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result := r.db.Model(&models.Instance{}).
					Where("name = ?", name).
					Update("last_heartbeat", time.Now())

				if result.Error != nil {
					errCh <- fmt.Errorf("registry: heartbeat %s: %w", name, result.Error)
					return
				}
				if result.RowsAffected == 0 {
					errCh <- fmt.Errorf("registry: heartbeat %s: instance not found", name)
					return
				}
			}
		}
	}()

	return errCh
}

// ListLive returns the names of instances whose heartbeat is within the
// liveness window, ordered by name for stable display.
func (r *Registry) ListLive(ctx context.Context) ([]string, error) {
	cutoff := time.Now().Add(-r.window())

	var names []string
	err := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("last_heartbeat >= ?", cutoff).
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("registry: list live instances: %w", err)
	}
	return names, nil
}

// PruneStale deletes rows whose heartbeat is older than the liveness
// window and returns how many were removed.
func (r *Registry) PruneStale() (int64, error) {
	cutoff := time.Now().Add(-r.window())

	result := r.db.Where("last_heartbeat < ?", cutoff).Delete(&models.Instance{})
	if result.Error != nil {
		return 0, fmt.Errorf("registry: prune stale instances: %w", result.Error)
	}
	return result.RowsAffected, nil
}
