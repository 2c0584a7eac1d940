package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

type changeOrderRequest struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Reason         *string  `json:"reason"`
	CostImpact     *float64 `json:"cost_impact"`
	TimeImpactDays *int     `json:"time_impact_days"`
}

// handleCreateChangeOrder files a pending change order against a project.
func (s *Server) handleCreateChangeOrder(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req changeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}
	if req.Title == nil || *req.Title == "" {
		s.respondError(c, apperr.Invalid("change order title is required"))
		return
	}
	if req.Description == nil || *req.Description == "" {
		s.respondError(c, apperr.Invalid("change order description is required"))
		return
	}

	co := models.ChangeOrder{
		ProjectID:   projectID,
		Title:       *req.Title,
		Description: *req.Description,
		RequestedBy: caller(c).UserID,
	}
	if req.Reason != nil {
		co.Reason = *req.Reason
	}
	if req.CostImpact != nil {
		co.CostImpact = *req.CostImpact
	}
	if req.TimeImpactDays != nil {
		co.TimeImpactDays = *req.TimeImpactDays
	}

	created, err := s.store.CreateChangeOrder(c.Request.Context(), co)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"change_order": created})
}

// handleListChangeOrders returns a project's change orders, newest first.
func (s *Server) handleListChangeOrders(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	orders, err := s.store.ListChangeOrders(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"change_orders": orders})
}

// handleChangeOrderStats aggregates a project's change-order state.
func (s *Server) handleChangeOrderStats(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stats, err := s.store.ChangeOrderStatistics(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"statistics": stats})
}

// handleGetChangeOrder fetches a single change order.
func (s *Server) handleGetChangeOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := s.store.GetChangeOrder(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"change_order": order})
}

// handleUpdateChangeOrder edits a pending change order. Requires mutation
// rights: project management or being the requester.
func (s *Server) handleUpdateChangeOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req changeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}

	order, project, err := s.changeOrderWithProject(c, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !auth.CanMutate(caller(c), project, order.RequestedBy) {
		s.respondError(c, apperr.Denied("caller cannot edit this change order"))
		return
	}

	updated, err := s.store.UpdateChangeOrder(c.Request.Context(), id, models.ChangeOrderUpdate{
		Title:          req.Title,
		Description:    req.Description,
		Reason:         req.Reason,
		CostImpact:     req.CostImpact,
		TimeImpactDays: req.TimeImpactDays,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"change_order": updated})
}

type decisionRequest struct {
	Status string `json:"status"`
}

// handleDecideChangeOrder approves or rejects a pending change order.
// Approval applies the cost and timeline impact to the project in the same
// operation. Requires management rights.
func (s *Server) handleDecideChangeOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}

	_, project, err := s.changeOrderWithProject(c, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ident := caller(c)
	if !auth.CanManageProject(ident, project) {
		s.respondError(c, apperr.Denied("caller cannot decide change orders for this project"))
		return
	}

	decided, err := s.store.DecideChangeOrder(c.Request.Context(), id, models.ChangeOrderStatus(req.Status), ident.UserID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"change_order": decided})
}

// handleImplementChangeOrder marks an approved change order implemented.
// Requires management rights.
func (s *Server) handleImplementChangeOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	_, project, err := s.changeOrderWithProject(c, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !auth.CanManageProject(caller(c), project) {
		s.respondError(c, apperr.Denied("caller cannot implement change orders for this project"))
		return
	}

	implemented, err := s.store.ImplementChangeOrder(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"change_order": implemented})
}

// changeOrderWithProject loads a change order and its owning project for
// access checks.
func (s *Server) changeOrderWithProject(c *gin.Context, id int64) (models.ChangeOrder, models.Project, error) {
	order, err := s.store.GetChangeOrder(c.Request.Context(), id)
	if err != nil {
		return models.ChangeOrder{}, models.Project{}, err
	}
	project, err := s.store.GetProject(c.Request.Context(), order.ProjectID)
	if err != nil {
		return models.ChangeOrder{}, models.Project{}, err
	}
	return order, project, nil
}
