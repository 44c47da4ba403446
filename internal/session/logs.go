package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/zulandar/vigil/internal/tailer"
)

// DefaultTailLines is the live-log preview length per instance.
const DefaultTailLines = 10

// InstanceLog is the tail preview of one live instance's monitoring log.
type InstanceLog struct {
	Instance string `json:"instance"`
	Tail     string `json:"tail"`
}

// GetActiveSessionMonitoringLogs returns the last lines of every live
// instance's in-progress monitoring log. It fails with store.ErrNotFound
// when no session is active; an instance that has not written a log yet
// appears with an empty tail. Only the Active area is ever tailed — the
// Completed inventory is never read this way.
func (l *Lifecycle) GetActiveSessionMonitoringLogs(ctx context.Context, lines int) ([]InstanceLog, error) {
	if _, err := l.Store.GetActive(); err != nil {
		return nil, err
	}
	if lines <= 0 {
		lines = DefaultTailLines
	}
	if l.Registry == nil {
		return []InstanceLog{}, nil
	}

	instances, err := l.Registry.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list live instances: %w", err)
	}

	logs := make([]InstanceLog, 0, len(instances))
	for _, name := range instances {
		tail, err := tailer.Tail(l.Store.ActiveLogPath(name), lines)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session: tail %s: %w", name, err)
		}
		logs = append(logs, InstanceLog{Instance: name, Tail: tail})
	}
	return logs, nil
}
