package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"atelier/internal/auth"
)

const identityKey = "identity"

type loginRequest struct {
	Email string `json:"email"`
}

// handleLogin exchanges a known user email for an API token. Credential
// verification happens upstream in the identity provider; this service
// only resolves the user record and mints a scoped token.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := s.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.NewToken(s.jwtSecret, user, s.tokenTTL)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"token": token, "user": user})
}

// requireAuth resolves the bearer token into a caller identity.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		identity, err := auth.ParseToken(s.jwtSecret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}
