package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListMonthlySummaries(c *gin.Context) {
	summaries, err := s.cohortSvc.ListMonthly(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}
