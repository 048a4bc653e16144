package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
	"github.com/storelytics/tally/pkg/db/pagination"
)

// ListFindings pages through the data quality log. Without an explicit
// run_id it scopes to the latest completed run, so the default answer is
// always "what is wrong with the data being served right now".
func (s *Server) ListFindings(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_pagination", "invalid pagination parameters"))
		return
	}

	req := reconciledomain.ListFindingsRequest{
		RunID:      c.Query("run_id"),
		Code:       c.Query("code"),
		Severity:   c.Query("severity"),
		Pagination: page,
	}

	if req.RunID == "" {
		latest, err := s.reconcileSvc.LatestCompletedRun(c.Request.Context())
		switch {
		case errors.Is(err, reconciledomain.ErrNoCompletedRun):
			c.JSON(http.StatusOK, gin.H{
				"data":      []*reconciledomain.Finding{},
				"page_info": &pagination.PageInfo{},
			})
			return
		case err != nil:
			AbortWithError(c, err)
			return
		}
		req.RunID = latest.ID.String()
	}

	resp, err := s.reconcileSvc.ListFindings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Findings,
		"page_info": resp.PageInfo,
	})
}
