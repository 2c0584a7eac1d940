package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

type projectRequest struct {
	Name             string   `json:"name"`
	ManagerID        *int64   `json:"manager_id"`
	Budget           *float64 `json:"budget"`
	EstimatedEndDate *string  `json:"estimated_end_date"`
	Status           *string  `json:"status"`
}

// handleCreateProject creates a new project owned by the caller.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}

	p := models.Project{
		Name:      req.Name,
		CreatedBy: caller(c).UserID,
		ManagerID: req.ManagerID,
	}
	if req.Budget != nil {
		p.Budget = *req.Budget
	}
	if req.Status != nil {
		p.Status = models.ProjectStatus(*req.Status)
	}
	if req.EstimatedEndDate != nil {
		end, err := parseDate(*req.EstimatedEndDate)
		if err != nil {
			s.respondError(c, apperr.Invalid("estimated_end_date must be an ISO-8601 date"))
			return
		}
		p.EstimatedEndDate = &end
	}

	project, err := s.store.CreateProject(c.Request.Context(), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": project})
}

// handleListProjects returns all available projects.
func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleGetProject fetches a single project.
func (s *Server) handleGetProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := s.store.GetProject(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

type projectStatusRequest struct {
	Status string `json:"status"`
}

// handleUpdateProjectStatus moves a project between delivery states.
// Requires management rights over the project.
func (s *Server) handleUpdateProjectStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req projectStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}

	project, err := s.store.GetProject(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !auth.CanManageProject(caller(c), project) {
		s.respondError(c, apperr.Denied("caller cannot manage this project"))
		return
	}

	project, err = s.store.UpdateProjectStatus(c.Request.Context(), id, models.ProjectStatus(req.Status))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}
