package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/vigil/internal/session"
	"github.com/zulandar/vigil/internal/store"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, l *session.Lifecycle) {
	api := router.Group("/api")

	api.POST("/sessions", handleCreate(l))
	api.GET("/sessions", handleList(l))
	api.GET("/sessions/active", handleGetActive(l))
	api.POST("/sessions/active/stop", handleStop(l))
	api.POST("/sessions/active/terminate", handleTerminate(l))
	api.GET("/sessions/active/logs", handleLogs(l))
	api.GET("/sessions/:id", handleGet(l))
	api.POST("/sessions/:id/analyze", handleAnalyze(l))
	api.POST("/sessions/:id/report", handleIngestReport(l))
	api.DELETE("/sessions/:id", handleDelete(l))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// writeError maps the lifecycle's error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrStorageReadOnly):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func handleCreate(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg session.Config
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		sess, err := l.Create(c.Request.Context(), cfg)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess)
	}
}

func handleList(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := l.GetAllCompletedSessions()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessions)
	}
}

func handleGetActive(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := l.GetActiveSession()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func handleStop(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.Stop(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	}
}

func handleTerminate(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.Terminate(); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "terminated"})
	}
}

func handleLogs(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		lines := session.DefaultTailLines
		if raw := c.Query("lines"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a positive integer"})
				return
			}
			lines = n
		}

		logs, err := l.GetActiveSessionMonitoringLogs(c.Request.Context(), lines)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

func handleGet(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := l.GetSession(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func handleAnalyze(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := l.Analyze(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, sess)
	}
}

// reportRequest carries one analysis outcome for a collected file. Either a
// report path or errors must be present for the call to change anything.
type reportRequest struct {
	FileName   string   `json:"fileName"`
	ReportPath string   `json:"reportPath"`
	Errors     []string `json:"errors"`
}

func handleIngestReport(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if req.FileName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileName is required"})
			return
		}

		sess, err := l.IngestReport(c.Request.Context(), c.Param("id"), req.FileName, req.ReportPath, req.Errors)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func handleDelete(l *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
