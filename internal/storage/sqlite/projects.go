package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

// CreateUser persists a new studio member.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	if u.Name == "" {
		return models.User{}, apperr.Invalid("user name is required")
	}
	if u.Email == "" {
		return models.User{}, apperr.Invalid("user email is required")
	}
	if u.Role == "" {
		u.Role = auth.RoleDesigner
	}
	if _, ok := auth.ValidRoles[u.Role]; !ok {
		return models.User{}, apperr.Invalidf("invalid role %q", u.Role)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, u.Email).Scan(&exists)
	if err != nil {
		return models.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return models.User{}, apperr.Conflictf("email %s is already registered", u.Email)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(name, email, role, active, created_at) VALUES(?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.Role, u.Active, now)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, active, created_at FROM users WHERE id = ?`, id))
}

// GetUserByEmail fetches a user by email, for token issuance.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, active, created_at FROM users WHERE email = ?`, strings.TrimSpace(email)))
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, role, active, created_at FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(sc scanner) (models.User, error) {
	var u models.User
	err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// activeUserExists reports whether id resolves to an active user.
func activeUserExists(ctx context.Context, q querier, id int64) (bool, error) {
	var active bool
	err := q.QueryRowContext(ctx, `SELECT active FROM users WHERE id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return active, nil
}

// CreateProject persists a new project in planning state.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.Project{}, apperr.Invalid("project name is required")
	}
	if p.Status == "" {
		p.Status = models.ProjectPlanning
	}
	if _, ok := models.ValidProjectStatuses[p.Status]; !ok {
		return models.Project{}, apperr.Invalidf("invalid project status %q", p.Status)
	}
	if p.ManagerID != nil {
		active, err := activeUserExists(ctx, s.db, *p.ManagerID)
		if err != nil {
			return models.Project{}, err
		}
		if !active {
			return models.Project{}, apperr.NotFound("manager does not resolve to an active user")
		}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects(name, created_by, manager_id, budget, estimated_end_date, status, created_at, updated_at)
         VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.CreatedBy, nullInt(p.ManagerID), p.Budget, nullTime(p.EstimatedEndDate), string(p.Status), now, now)
	if err != nil {
		return models.Project{}, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Project{}, fmt.Errorf("project id: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a single project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (models.Project, error) {
	return getProject(ctx, s.db, id)
}

func getProject(ctx context.Context, q querier, id int64) (models.Project, error) {
	var p models.Project
	var managerID sql.NullInt64
	var endDate sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_by, manager_id, budget, estimated_end_date, status, created_at, updated_at
         FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedBy, &managerID, &p.Budget, &endDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, apperr.NotFound("project not found")
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	if managerID.Valid {
		p.ManagerID = &managerID.Int64
	}
	if endDate.Valid {
		t := endDate.Time
		p.EstimatedEndDate = &t
	}
	return p, nil
}

// ListProjects retrieves all projects ordered by creation date.
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_by, manager_id, budget, estimated_end_date, status, created_at, updated_at
         FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var managerID sql.NullInt64
		var endDate sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedBy, &managerID, &p.Budget, &endDate, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if managerID.Valid {
			p.ManagerID = &managerID.Int64
		}
		if endDate.Valid {
			t := endDate.Time
			p.EstimatedEndDate = &t
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProjectStatus moves a project between delivery states.
func (s *Store) UpdateProjectStatus(ctx context.Context, id int64, status models.ProjectStatus) (models.Project, error) {
	if _, ok := models.ValidProjectStatuses[status]; !ok {
		return models.Project{}, apperr.Invalidf("invalid project status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return models.Project{}, fmt.Errorf("update project status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Project{}, err
	}
	if affected == 0 {
		return models.Project{}, apperr.NotFound("project not found")
	}
	return s.GetProject(ctx, id)
}
