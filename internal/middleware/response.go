package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AbortWithError writes the gateway's JSON error body and stops the chain.
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   http.StatusText(status),
		"message": message,
	})
}
