package session

import "github.com/zulandar/vigil/internal/models"

// Policy bounds applied at session creation.
const (
	MinCPUThreshold     = 50   // percent
	MinMonitorDuration  = 5    // seconds
	MinThresholdSeconds = 15   // seconds
	MaxCustomActions    = 20
	MaxSessionHours     = 8760 // 365 days
	MaxIntervalDays     = 30
)

// validate checks a Create configuration against the policy bounds and
// returns the first violation found.
func validate(cfg Config) error {
	if cfg.CPUThreshold < MinCPUThreshold {
		return &ValidationError{Field: "CpuThreshold", Message: "cannot be less than 50 percent"}
	}
	if cfg.MonitorDuration < MinMonitorDuration {
		return &ValidationError{Field: "MonitorDuration", Message: "cannot be less than 5 seconds"}
	}
	if cfg.ThresholdSeconds < MinThresholdSeconds {
		return &ValidationError{Field: "ThresholdSeconds", Message: "cannot be less than 15 seconds"}
	}
	if cfg.MaxActions > MaxCustomActions {
		return &ValidationError{Field: "MaxActions", Message: "cannot be more than 20"}
	}
	if cfg.MaxHours > MaxSessionHours {
		return &ValidationError{Field: "MaxHours", Message: "cannot be more than 8760 hours (365 days)"}
	}
	if cfg.RuleType == models.RuleAlwaysOn {
		if cfg.ActionsInInterval > cfg.MaxActions {
			return &ValidationError{Field: "ActionsInInterval", Message: "cannot be more than MaxActions"}
		}
		if cfg.ActionsInInterval > MaxCustomActions {
			return &ValidationError{Field: "ActionsInInterval", Message: "cannot be more than 20"}
		}
		if cfg.IntervalDays > MaxIntervalDays {
			return &ValidationError{Field: "IntervalDays", Message: "cannot be more than 30 days"}
		}
	}
	return nil
}
