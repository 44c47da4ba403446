package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/vigil/internal/db"
	"github.com/zulandar/vigil/internal/models"
	"github.com/zulandar/vigil/internal/registry"
	"github.com/zulandar/vigil/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Monitoring session commands",
	}

	cmd.AddCommand(newSessionStartCmd())
	cmd.AddCommand(newSessionStopCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionAnalyzeCmd())
	cmd.AddCommand(newSessionReportCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	cmd.AddCommand(newSessionTerminateCmd())
	cmd.AddCommand(newSessionLogsCmd())
	return cmd
}

func newSessionStartCmd() *cobra.Command {
	var (
		configPath string
		scfg       session.Config
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a monitoring session",
		Long:  "Creates a new monitoring session in the Active area. At most one session is active at a time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionStart(cmd, configPath, scfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	cmd.Flags().StringVar(&scfg.RuleType, "rule", models.RuleOneTime, "rule type (oneTime, alwaysOn)")
	cmd.Flags().StringVar(&scfg.Mode, "mode", models.ModeCollect, "mode (collect, collectKillAnalyze)")
	cmd.Flags().IntVar(&scfg.CPUThreshold, "cpu", 80, "CPU usage trigger threshold in percent")
	cmd.Flags().IntVar(&scfg.MonitorDuration, "duration", 15, "sampling window in seconds")
	cmd.Flags().IntVar(&scfg.ThresholdSeconds, "sustained", 30, "seconds the threshold must hold before acting")
	cmd.Flags().IntVar(&scfg.MaxActions, "max-actions", 3, "total action budget")
	cmd.Flags().IntVar(&scfg.ActionsInInterval, "interval-actions", 0, "action budget per interval (alwaysOn)")
	cmd.Flags().IntVar(&scfg.IntervalDays, "interval-days", 0, "interval length in days (alwaysOn)")
	cmd.Flags().IntVar(&scfg.MaxHours, "max-hours", 24, "session lifetime budget in hours")
	return cmd
}

func runSessionStart(cmd *cobra.Command, configPath string, scfg session.Config) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	sess, err := l.Create(cmd.Context(), scfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started session %s\n", sess.SessionID)
	fmt.Fprintf(out, "Rule: %s, mode: %s, CPU threshold: %d%%\n", sess.RuleType, sess.Mode, sess.CPUThreshold)
	return nil
}

func newSessionStopCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active monitoring session",
		Long:  "Moves the active session to Completed, reconciling its file inventory against remote storage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionStop(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	return cmd
}

func runSessionStop(cmd *cobra.Command, configPath string) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := l.Stop(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Session stopped.")
	return nil
}

func newSessionListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List completed sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	return cmd
}

func runSessionList(cmd *cobra.Command, configPath string) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	sessions, err := l.GetAllCompletedSessions()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No completed sessions.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tENDED\tRULE\tANALYSIS\tFILES")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			s.SessionID,
			s.StartDate.Format(time.RFC3339),
			s.EndDate.Format(time.RFC3339),
			s.RuleType,
			s.AnalysisStatus,
			len(s.FilesCollected))
	}
	return w.Flush()
}

func newSessionShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show a session's details",
		Long:  "Shows the active session when no id is given, otherwise the completed session with that id.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runSessionShow(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	return cmd
}

func runSessionShow(cmd *cobra.Command, configPath, id string) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	var sess *models.MonitoringSession
	if id == "" {
		sess, err = l.GetActiveSession()
	} else {
		sess, err = l.GetSession(id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:  %s\n", sess.SessionID)
	fmt.Fprintf(out, "Started:  %s\n", sess.StartDate.Format(time.RFC3339))
	if sess.Active() {
		fmt.Fprintln(out, "State:    active")
	} else {
		fmt.Fprintf(out, "Ended:    %s\n", sess.EndDate.Format(time.RFC3339))
		fmt.Fprintf(out, "State:    completed (analysis %s)\n", sess.AnalysisStatus)
	}
	fmt.Fprintf(out, "Rule:     %s, mode %s\n", sess.RuleType, sess.Mode)
	fmt.Fprintf(out, "Trigger:  CPU >= %d%% for %ds (window %ds)\n",
		sess.CPUThreshold, sess.ThresholdSeconds, sess.MonitorDuration)

	if len(sess.FilesCollected) > 0 {
		fmt.Fprintf(out, "Files:    %d collected\n", len(sess.FilesCollected))
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  FILE\tREPORT\tERRORS")
		for _, f := range sess.FilesCollected {
			fmt.Fprintf(w, "  %s\t%s\t%d\n", f.FileName, f.ReportFile, len(f.AnalysisErrors))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func newSessionAnalyzeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "analyze <session-id>",
		Short: "Queue a completed session for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionAnalyze(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	return cmd
}

func runSessionAnalyze(cmd *cobra.Command, configPath, id string) error {
	cfg, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := wireCollaborators(l, gormDB, cfg); err != nil {
		return err
	}

	sess, err := l.Analyze(cmd.Context(), id)
	if err != nil {
		return err
	}

	pending := 0
	for _, f := range sess.FilesCollected {
		if !f.Analyzed() {
			pending++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Analysis queued for session %s (%d files pending)\n", id, pending)
	return nil
}

func newSessionReportCmd() *cobra.Command {
	var (
		configPath string
		fileName   string
		reportPath string
		errMsgs    []string
	)

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Attach an analysis outcome to a collected file",
		Long:  "Records a report or analysis errors against one collected file of a completed session, as an external analyzer would.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionReport(cmd, configPath, args[0], fileName, reportPath, errMsgs)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	cmd.Flags().StringVar(&fileName, "file", "", "collected file the outcome belongs to (required)")
	cmd.Flags().StringVar(&reportPath, "report", "", "path to the generated report")
	cmd.Flags().StringArrayVar(&errMsgs, "error", nil, "analysis error to record (repeatable)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runSessionReport(cmd *cobra.Command, configPath, id, fileName, reportPath string, errMsgs []string) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	sess, err := l.IngestReport(cmd.Context(), id, fileName, reportPath, errMsgs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recorded outcome for %s in session %s\n", fileName, id)
	fmt.Fprintf(out, "Analysis status: %s\n", sess.AnalysisStatus)
	return nil
}

func newSessionDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a completed session and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionDelete(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	return cmd
}

func runSessionDelete(cmd *cobra.Command, configPath, id string) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := l.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
	return nil
}

func newSessionTerminateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Force-clear the Active area",
		Long:  "Unconditionally clears the Active area, recovering from a corrupted or stuck session. No Completed record is written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionTerminate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	return cmd
}

func runSessionTerminate(cmd *cobra.Command, configPath string) error {
	_, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := l.Terminate(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Active area cleared.")
	return nil
}

func newSessionLogsCmd() *cobra.Command {
	var (
		configPath string
		lines      int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Tail the active session's monitoring logs",
		Long:  "Shows the last lines of every live instance's in-progress monitoring log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionLogs(cmd, configPath, lines)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vigil.yaml", "path to Vigil config file")
	cmd.Flags().IntVarP(&lines, "lines", "n", session.DefaultTailLines, "lines per instance")
	return cmd
}

func runSessionLogs(cmd *cobra.Command, configPath string, lines int) error {
	cfg, l, err := lifecycleFromConfig(configPath)
	if err != nil {
		return err
	}

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	l.Registry = registry.New(gormDB)

	logs, err := l.GetActiveSessionMonitoringLogs(cmd.Context(), lines)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(logs) == 0 {
		fmt.Fprintln(out, "No live instances.")
		return nil
	}
	for _, il := range logs {
		fmt.Fprintf(out, "=== %s ===\n", il.Instance)
		if il.Tail == "" {
			fmt.Fprintln(out, "(no log yet)")
			continue
		}
		fmt.Fprint(out, il.Tail)
	}
	return nil
}
