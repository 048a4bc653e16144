package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetOrderFacts returns the canonical financial record for one order: the
// order-grain fact plus every line-grain fact beneath it.
func (s *Server) GetOrderFacts(c *gin.Context) {
	facts, err := s.reconcileSvc.GetOrderFacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": facts})
}
