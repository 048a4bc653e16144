package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetPaymentStats returns the payment behaviour stats computed by the latest
// completed run. There is no row-level payment endpoint: the engine publishes
// outcomes, not attempt histories.
func (s *Server) GetPaymentStats(c *gin.Context) {
	run, err := s.reconcileSvc.LatestCompletedRun(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       run.ID.String(),
		"completed_at": run.CompletedAt,
		"stats":        run.Stats,
	})
}
