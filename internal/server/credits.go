package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCredits(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.ledgerSvc.AvailableCredit(c.Request.Context(), s.db, user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":   summary.Balance.String(),
		"held":      summary.Held.String(),
		"available": summary.Available.String(),
	})
}
