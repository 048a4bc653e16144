package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
)

// CreateRun queues a reconciliation run. The 202 reply carries the id to
// poll; the run itself executes on the worker loop.
func (s *Server) CreateRun(c *gin.Context) {
	run, err := s.reconcileSvc.EnqueueRun(c.Request.Context(), reconciledomain.TriggerAPI)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID.String(),
		"status": "queued",
	})
}

func (s *Server) GetRun(c *gin.Context) {
	run, err := s.reconcileSvc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}

func (s *Server) ListRuns(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
		return
	}

	runs, err := s.reconcileSvc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
