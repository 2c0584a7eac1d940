package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

type taskRequest struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	AssignedTo     *int64   `json:"assigned_to"`
	Status         *string  `json:"status"`
	Priority       *string  `json:"priority"`
	DueDate        *string  `json:"due_date"`
	EstimatedHours *float64 `json:"estimated_hours"`
	ActualHours    *float64 `json:"actual_hours"`
	Dependencies   *[]int64 `json:"dependencies"`
}

// handleCreateTask inserts a new task into a project.
func (s *Server) handleCreateTask(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}
	if req.Title == nil || *req.Title == "" {
		s.respondError(c, apperr.Invalid("task title is required"))
		return
	}

	t := models.Task{
		ProjectID:      projectID,
		Title:          *req.Title,
		AssignedTo:     req.AssignedTo,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		CreatedBy:      caller(c).UserID,
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = models.TaskStatus(*req.Status)
	}
	if req.Priority != nil {
		t.Priority = models.TaskPriority(*req.Priority)
	}
	if req.Dependencies != nil {
		t.Dependencies = *req.Dependencies
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			s.respondError(c, apperr.Invalid("due_date must be an ISO-8601 date"))
			return
		}
		t.DueDate = &due
	}

	task, err := s.store.CreateTask(c.Request.Context(), t)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleListTasks fetches a project's tasks with optional filters.
func (s *Server) handleListTasks(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	filter := models.TaskFilter{ProjectID: &projectID}
	if raw := c.Query("assigned_to"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(c, apperr.Invalid("assigned_to must be a user id"))
			return
		}
		filter.AssignedTo = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := models.TaskStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority := models.TaskPriority(raw)
		filter.Priority = &priority
	}
	filter.Overdue = c.Query("overdue") == "true"

	tasks, err := s.store.ListTasks(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleTaskStats aggregates a project's task state.
func (s *Server) handleTaskStats(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stats, err := s.store.TaskStatistics(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"statistics": stats})
}

// handleGetTask returns a task with its assignee and dependency tasks.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTask applies a partial edit to a task. Requires mutation
// rights: project management or being the task's creator.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("invalid request body"))
		return
	}

	task, project, err := s.taskWithProject(c, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !auth.CanMutate(caller(c), project, task.CreatedBy) {
		s.respondError(c, apperr.Denied("caller cannot edit this task"))
		return
	}

	upd := models.TaskUpdate{
		Title:          req.Title,
		Description:    req.Description,
		AssignedTo:     req.AssignedTo,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		Dependencies:   req.Dependencies,
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		upd.Status = &status
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		upd.Priority = &priority
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			s.respondError(c, apperr.Invalid("due_date must be an ISO-8601 date"))
			return
		}
		upd.DueDate = &due
	}

	updated, err := s.store.UpdateTask(c.Request.Context(), id, upd)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": updated})
}

// handleDeleteTask removes a task unless other tasks depend on it.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, project, err := s.taskWithProject(c, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !auth.CanMutate(caller(c), project, task.CreatedBy) {
		s.respondError(c, apperr.Denied("caller cannot delete this task"))
		return
	}

	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// taskWithProject loads a task and its owning project for access checks.
func (s *Server) taskWithProject(c *gin.Context, id int64) (models.TaskDetail, models.Project, error) {
	task, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		return models.TaskDetail{}, models.Project{}, err
	}
	project, err := s.store.GetProject(c.Request.Context(), task.ProjectID)
	if err != nil {
		return models.TaskDetail{}, models.Project{}, err
	}
	return task, project, nil
}
