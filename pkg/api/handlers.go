// pkg/api/handlers.go
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/pipeline"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

func (s *Server) handleInfo(c *gin.Context) {
	info := gin.H{
		"service": "flat-ingress",
		"version": s.version,
		"endpoints": []string{
			"POST /api/flow/run",
			"POST /api/flow/reset",
			"GET /api/flow/status",
			"GET /api/flow/logs/:runId",
			"GET /api/flow/stats",
			"GET /api/health",
		},
	}
	if s.schedule != nil {
		info["schedule"] = s.schedule()
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleHealth(c *gin.Context) {
	components := make(map[string]string, len(s.checks))
	overall := statusUp

	for _, check := range s.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		err := check.Pinger.Ping(ctx)
		cancel()

		if err != nil {
			s.logger.Warn("Health check failed", zap.String("component", check.Name), zap.Error(err))
			components[check.Name] = statusDown
			overall = statusDown
			continue
		}
		components[check.Name] = statusUp
	}

	code := http.StatusOK
	if overall == statusDown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": overall, "components": components})
}

// handleRun blocks until the run ends. Aborted runs answer 409, failed runs 500.
func (s *Server) handleRun(c *gin.Context) {
	res, err := s.flow.Run(c.Request.Context(), pipeline.TriggerManual)
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}

	body := gin.H{"error": err.Error(), "result": res}
	var runErr *pipeline.Error
	if errors.As(err, &runErr) {
		body["kind"] = runErr.Kind.String()
		if runErr.Kind.Action() == pipeline.ActionAbort {
			c.JSON(http.StatusConflict, body)
			return
		}
	}
	c.JSON(http.StatusInternalServerError, body)
}

func (s *Server) handleReset(c *gin.Context) {
	previous, err := s.flow.Reset(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("Control record reset", zap.String("previousStatus", string(previous)))
	c.JSON(http.StatusOK, gin.H{
		"previousStatus": previous,
		"status":         model.StatusReady,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	rec, err := s.flow.Status(c.Request.Context())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "control record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleLogs(c *gin.Context) {
	runID := c.Param("runId")

	logs, err := s.flow.Logs(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []model.RunLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runId": runID,
		"count": len(logs),
		"logs":  logs,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	ov, err := s.flow.Overview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ov)
}
