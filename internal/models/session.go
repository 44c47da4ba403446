package models

import "time"

// SessionIDLayout is the time layout a session id is derived from. The id
// doubles as the record's filename stem, so it contains no path separators
// or colons.
const SessionIDLayout = "060102_150405"

// Rule types for a monitoring session.
const (
	RuleAlwaysOn = "alwaysOn"
	RuleOneTime  = "oneTime"
)

// Monitoring modes.
const (
	ModeCollect            = "collect"
	ModeCollectKillAnalyze = "collectKillAnalyze"
)

// Analysis status of a completed session.
const (
	AnalysisNotStarted = "notStarted"
	AnalysisContinuous = "continuous"
	AnalysisInProgress = "inProgress"
	AnalysisCompleted  = "completed"
)

// MonitoringSession is one bounded CPU-monitoring run. While the session is
// active its record lives in the Active area and EndDate is the zero time;
// stopping the session stamps EndDate and moves the record to the Completed
// area. Configuration fields are fixed at creation.
type MonitoringSession struct {
	SessionID string    `json:"sessionId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	RuleType          string `json:"ruleType"`
	Mode              string `json:"mode"`
	CPUThreshold      int    `json:"cpuThreshold"`      // percent
	MonitorDuration   int    `json:"monitorDuration"`   // seconds per monitor window
	ThresholdSeconds  int    `json:"thresholdSeconds"`  // seconds CPU must stay above threshold
	MaxActions        int    `json:"maxActions"`        // max custom actions over the session
	ActionsInInterval int    `json:"actionsInInterval"` // actions allowed per interval (alwaysOn only)
	IntervalDays      int    `json:"intervalDays"`      // interval length (alwaysOn only)
	MaxHours          int    `json:"maxHours"`          // max total session duration

	AnalysisStatus string           `json:"analysisStatus"`
	FilesCollected []MonitoringFile `json:"filesCollected"`

	// Provenance, recorded at creation and used to resolve the remote
	// storage layout a session's artifacts were uploaded under.
	BlobStorageHostName string `json:"blobStorageHostName"`
	DefaultHostName     string `json:"defaultHostName"`
}

// Active reports whether the session is still running. EndDate doubles as
// the state marker: the zero time means Active, anything else Completed.
func (s *MonitoringSession) Active() bool {
	return s.EndDate.IsZero()
}

// MonitoringFile is one collected artifact plus its optional analysis
// outcome. Identity within a session is FileName.
type MonitoringFile struct {
	FileName               string   `json:"fileName"`
	RelativePath           string   `json:"relativePath"`
	ReportFile             string   `json:"reportFile,omitempty"`
	ReportFileRelativePath string   `json:"reportFileRelativePath,omitempty"`
	AnalysisErrors         []string `json:"analysisErrors,omitempty"`
}

// Analyzed reports whether analysis has concluded for this file, either
// with a report or with recorded errors.
func (f *MonitoringFile) Analyzed() bool {
	return f.ReportFile != "" || len(f.AnalysisErrors) > 0
}
