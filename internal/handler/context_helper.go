package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edupoint/sims-api/internal/middleware"
	"github.com/edupoint/sims-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextAccountKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
