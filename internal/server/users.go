package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

type userRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active *bool  `json:"active"`
}

// handleCreateUser registers a studio member. Admin only.
func (s *Server) handleCreateUser(c *gin.Context) {
	if caller(c).Role != auth.RoleAdmin {
		s.respondError(c, apperr.Denied("only admins can create users"))
		return
	}

	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	user, err := s.store.CreateUser(c.Request.Context(), models.User{
		Name:   req.Name,
		Email:  req.Email,
		Role:   req.Role,
		Active: active,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"user": user})
}

// handleListUsers returns all users.
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": users})
}

// handleGetUser fetches a single user.
func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, err := s.store.GetUser(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}
