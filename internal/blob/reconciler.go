package blob

import (
	"context"
	"log"
	"path"
	"strings"

	"github.com/zulandar/vigil/internal/models"
)

// monitoringRoot is the path segment all session artifacts live under
// remotely, in both the legacy and the host-qualified layout.
const monitoringRoot = "Monitoring/Logs"

// reportExt marks locally generated analysis reports.
const reportExt = ".mht"

// Prefixes returns the remote prefixes a session's artifacts may live
// under, current layout first. The legacy unqualified layout is retained for
// sessions created before hosts were written into the path; new layouts are
// added by appending here, never by branching at call sites.
func Prefixes(defaultHostName, sessionID string) []string {
	prefixes := []string{
		path.Join(monitoringRoot, sessionID),
	}
	if defaultHostName != "" {
		prefixes = append([]string{
			path.Join(defaultHostName, monitoringRoot, sessionID),
		}, prefixes...)
	}
	return prefixes
}

// Reconciler builds a session's authoritative file inventory from the
// remote listing plus locally produced reports.
type Reconciler struct {
	Client Client
}

// CollectFiles lists every candidate prefix for the session and merges the
// results into one inventory, attaching a local report to each artifact
// when one matches. Entries are not deduplicated across layouts: the two
// prefixes address disjoint physical objects. A failed listing of one
// prefix is logged and the others are still processed; a total failure
// yields an empty inventory rather than an error.
func (r *Reconciler) CollectFiles(ctx context.Context, sess *models.MonitoringSession, localReports []string) []models.MonitoringFile {
	files := []models.MonitoringFile{}
	for _, prefix := range Prefixes(sess.DefaultHostName, sess.SessionID) {
		entries, err := r.Client.List(ctx, prefix)
		if err != nil {
			log.Printf("blob: session %s: list %s: %v", sess.SessionID, prefix, err)
			continue
		}
		for _, e := range entries {
			f := models.MonitoringFile{
				FileName:     e.Name,
				RelativePath: e.RelativePath,
			}
			if report := matchReport(e.Name, localReports); report != "" {
				f.ReportFile = report
				f.ReportFileRelativePath = path.Join("Logs", sess.SessionID, report)
			}
			files = append(files, f)
		}
	}
	return files
}

// matchReport selects the first local report whose filename, extension
// stripped, is a prefix of the artifact's filename, extension stripped.
// Report generators append qualifiers to the artifact stem, so prefix
// matching pairs them back up.
func matchReport(artifactName string, localReports []string) string {
	artifactStem := stripExt(artifactName)
	for _, report := range localReports {
		name := path.Base(report)
		if !strings.EqualFold(path.Ext(name), reportExt) {
			continue
		}
		if strings.HasPrefix(artifactStem, stripExt(name)) {
			return name
		}
	}
	return ""
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// DeleteFilesFromBlob best-effort deletes a session's artifacts at both the
// legacy and the current relative paths. Failures are logged and never
// propagated: local deletion proceeds regardless of the mirror's state.
func (r *Reconciler) DeleteFilesFromBlob(ctx context.Context, sess *models.MonitoringSession) {
	for _, f := range sess.FilesCollected {
		candidates := []string{
			path.Join(monitoringRoot, sess.SessionID, f.FileName),
		}
		if sess.DefaultHostName != "" {
			candidates = append(candidates,
				path.Join(sess.DefaultHostName, monitoringRoot, sess.SessionID, f.FileName))
		}
		for _, rel := range candidates {
			if err := r.Client.Delete(ctx, rel); err != nil {
				log.Printf("blob: session %s: delete %s: %v", sess.SessionID, rel, err)
			}
		}
	}
}
