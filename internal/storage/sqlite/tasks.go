package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"atelier/internal/apperr"
	"atelier/internal/models"
)

const taskColumns = `id, project_id, title, description, assigned_to, status, priority,
    due_date, estimated_hours, actual_hours, dependencies, created_by, completed_at, created_at, updated_at`

// CreateTask validates and inserts a new task. Dependencies must resolve to
// tasks in the same project; the assignee must be an active user.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return models.Task{}, apperr.Invalid("task title is required")
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if _, ok := models.ValidTaskStatuses[t.Status]; !ok {
		return models.Task{}, apperr.Invalidf("invalid task status %q", t.Status)
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if _, ok := models.ValidTaskPriorities[t.Priority]; !ok {
		return models.Task{}, apperr.Invalidf("invalid task priority %q", t.Priority)
	}

	var created models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		project, err := getProject(ctx, tx, t.ProjectID)
		if err != nil {
			return err
		}
		if project.Status.Terminal() {
			return apperr.Conflictf("project is %s and no longer accepts tasks", project.Status)
		}
		if t.AssignedTo != nil {
			active, err := activeUserExists(ctx, tx, *t.AssignedTo)
			if err != nil {
				return err
			}
			if !active {
				return apperr.NotFound("assigned user does not resolve to an active user")
			}
		}
		deps, err := validateDependencies(ctx, tx, t.ProjectID, 0, t.Dependencies)
		if err != nil {
			return err
		}
		t.Dependencies = deps

		now := time.Now().UTC()
		var completedAt *time.Time
		if t.Status == models.TaskCompleted {
			completedAt = &now
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(project_id, title, description, assigned_to, status, priority,
                due_date, estimated_hours, actual_hours, dependencies, created_by, completed_at, created_at, updated_at)
             VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ProjectID, t.Title, strings.TrimSpace(t.Description), nullInt(t.AssignedTo),
			string(t.Status), string(t.Priority), nullTime(t.DueDate),
			nullFloat(t.EstimatedHours), nullFloat(t.ActualHours), encodeIDs(t.Dependencies),
			t.CreatedBy, nullTime(completedAt), now, now)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("task id: %w", err)
		}
		created, err = getTask(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}
	return created, nil
}

// UpdateTask applies a partial edit. Nil fields keep their stored value; a
// transition into completed stamps completed_at.
func (s *Store) UpdateTask(ctx context.Context, id int64, upd models.TaskUpdate) (models.Task, error) {
	var updated models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getTask(ctx, tx, id)
		if err != nil {
			return err
		}

		if upd.Title != nil {
			title := strings.TrimSpace(*upd.Title)
			if title == "" {
				return apperr.Invalid("task title is required")
			}
			cur.Title = title
		}
		if upd.Description != nil {
			cur.Description = strings.TrimSpace(*upd.Description)
		}
		if upd.Priority != nil {
			if _, ok := models.ValidTaskPriorities[*upd.Priority]; !ok {
				return apperr.Invalidf("invalid task priority %q", *upd.Priority)
			}
			cur.Priority = *upd.Priority
		}
		if upd.Status != nil {
			if _, ok := models.ValidTaskStatuses[*upd.Status]; !ok {
				return apperr.Invalidf("invalid task status %q", *upd.Status)
			}
			if *upd.Status == models.TaskCompleted && cur.Status != models.TaskCompleted {
				now := time.Now().UTC()
				cur.CompletedAt = &now
			}
			cur.Status = *upd.Status
		}
		if upd.AssignedTo != nil {
			active, err := activeUserExists(ctx, tx, *upd.AssignedTo)
			if err != nil {
				return err
			}
			if !active {
				return apperr.NotFound("assigned user does not resolve to an active user")
			}
			cur.AssignedTo = upd.AssignedTo
		}
		if upd.DueDate != nil {
			cur.DueDate = upd.DueDate
		}
		if upd.EstimatedHours != nil {
			cur.EstimatedHours = upd.EstimatedHours
		}
		if upd.ActualHours != nil {
			cur.ActualHours = upd.ActualHours
		}
		if upd.Dependencies != nil {
			deps, err := validateDependencies(ctx, tx, cur.ProjectID, id, *upd.Dependencies)
			if err != nil {
				return err
			}
			cur.Dependencies = deps
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET title = ?, description = ?, assigned_to = ?, status = ?, priority = ?,
                due_date = ?, estimated_hours = ?, actual_hours = ?, dependencies = ?, completed_at = ?, updated_at = ?
             WHERE id = ?`,
			cur.Title, cur.Description, nullInt(cur.AssignedTo), string(cur.Status), string(cur.Priority),
			nullTime(cur.DueDate), nullFloat(cur.EstimatedHours), nullFloat(cur.ActualHours),
			encodeIDs(cur.Dependencies), nullTime(cur.CompletedAt), time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		updated, err = getTask(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}
	return updated, nil
}

// DeleteTask removes a task unless another task still depends on it. The
// dependent check and the delete share one transaction so a dependent
// cannot appear between them.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, id)
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id, dependencies FROM tasks WHERE project_id = ? AND id != ?`, t.ProjectID, id)
		if err != nil {
			return fmt.Errorf("list dependents: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var otherID int64
			var depsJSON string
			if err := rows.Scan(&otherID, &depsJSON); err != nil {
				return fmt.Errorf("scan dependent: %w", err)
			}
			for _, dep := range decodeIDs(depsJSON) {
				if dep == id {
					return apperr.Conflictf("task %d depends on this task", otherID)
				}
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// GetTask returns a task with its resolved assignee and dependency tasks
// ordered by title.
func (s *Store) GetTask(ctx context.Context, id int64) (models.TaskDetail, error) {
	t, err := getTask(ctx, s.db, id)
	if err != nil {
		return models.TaskDetail{}, err
	}

	detail := models.TaskDetail{Task: t, DependencyTasks: []models.Task{}}
	if t.AssignedTo != nil {
		var u models.UserSummary
		err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = ?`, *t.AssignedTo).
			Scan(&u.ID, &u.Name, &u.Email)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return models.TaskDetail{}, fmt.Errorf("resolve assignee: %w", err)
		}
		if err == nil {
			detail.Assignee = &u
		}
	}

	if len(t.Dependencies) > 0 {
		placeholders := strings.Repeat("?,", len(t.Dependencies))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, len(t.Dependencies))
		for i, dep := range t.Dependencies {
			args[i] = dep
		}
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT %s FROM tasks WHERE id IN (%s) ORDER BY title ASC`, taskColumns, placeholders), args...)
		if err != nil {
			return models.TaskDetail{}, fmt.Errorf("resolve dependencies: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			dep, err := scanTask(rows)
			if err != nil {
				return models.TaskDetail{}, err
			}
			detail.DependencyTasks = append(detail.DependencyTasks, dep)
		}
		if err := rows.Err(); err != nil {
			return models.TaskDetail{}, err
		}
	}
	return detail, nil
}

// ListTasks returns tasks matching the filter, ordered by priority rank,
// then due date with nulls last, then newest first.
func (s *Store) ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	q := strings.Builder{}
	fmt.Fprintf(&q, "SELECT %s FROM tasks WHERE 1=1", taskColumns)
	args := []any{}

	if f.ProjectID != nil {
		q.WriteString(" AND project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.AssignedTo != nil {
		q.WriteString(" AND assigned_to = ?")
		args = append(args, *f.AssignedTo)
	}
	if f.Status != nil {
		q.WriteString(" AND status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Priority != nil {
		q.WriteString(" AND priority = ?")
		args = append(args, string(*f.Priority))
	}
	if f.Overdue {
		q.WriteString(" AND due_date IS NOT NULL AND due_date < ? AND status NOT IN ('completed', 'cancelled')")
		args = append(args, time.Now().UTC())
	}
	q.WriteString(` ORDER BY CASE priority
        WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
        due_date IS NULL, due_date ASC, created_at DESC, id DESC`)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskStatistics aggregates the project's task state: counts, completion
// rate, and breakdowns by priority and assignee.
func (s *Store) TaskStatistics(ctx context.Context, projectID int64) (models.TaskStatistics, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return models.TaskStatistics{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.status, t.priority, t.assigned_to, t.due_date, COALESCE(u.name, '')
         FROM tasks t LEFT JOIN users u ON u.id = t.assigned_to
         WHERE t.project_id = ?`, projectID)
	if err != nil {
		return models.TaskStatistics{}, fmt.Errorf("task statistics: %w", err)
	}
	defer rows.Close()

	stats := models.TaskStatistics{
		ByPriority: []models.PriorityBreakdown{},
		ByAssignee: []models.AssigneeBreakdown{},
	}
	byPriority := map[models.TaskPriority]*models.PriorityBreakdown{}
	type assigneeKey struct {
		id   int64
		none bool
	}
	byAssignee := map[assigneeKey]*models.AssigneeBreakdown{}
	now := time.Now().UTC()

	for rows.Next() {
		var status models.TaskStatus
		var priority models.TaskPriority
		var assignedTo sql.NullInt64
		var dueDate sql.NullTime
		var assigneeName string
		if err := rows.Scan(&status, &priority, &assignedTo, &dueDate, &assigneeName); err != nil {
			return models.TaskStatistics{}, fmt.Errorf("scan task stats: %w", err)
		}

		stats.Total++
		completed := status == models.TaskCompleted
		if completed {
			stats.Completed++
		}
		if status == models.TaskInProgress {
			stats.InProgress++
		}
		if dueDate.Valid && dueDate.Time.Before(now) &&
			status != models.TaskCompleted && status != models.TaskCancelled {
			stats.Overdue++
		}

		pb, ok := byPriority[priority]
		if !ok {
			pb = &models.PriorityBreakdown{Priority: priority}
			byPriority[priority] = pb
		}
		pb.Total++
		if completed {
			pb.Completed++
		}

		key := assigneeKey{none: true}
		name := "unassigned"
		if assignedTo.Valid {
			key = assigneeKey{id: assignedTo.Int64}
			name = assigneeName
		}
		ab, ok := byAssignee[key]
		if !ok {
			ab = &models.AssigneeBreakdown{AssigneeName: name}
			if assignedTo.Valid {
				id := assignedTo.Int64
				ab.AssigneeID = &id
			}
			byAssignee[key] = ab
		}
		ab.Total++
		if completed {
			ab.Completed++
		}
	}
	if err := rows.Err(); err != nil {
		return models.TaskStatistics{}, err
	}

	if stats.Total > 0 {
		stats.CompletionRate = math.Round(float64(stats.Completed) / float64(stats.Total) * 100)
	}

	for _, pb := range byPriority {
		stats.ByPriority = append(stats.ByPriority, *pb)
	}
	sort.Slice(stats.ByPriority, func(i, j int) bool {
		return models.PriorityRank(stats.ByPriority[i].Priority) < models.PriorityRank(stats.ByPriority[j].Priority)
	})
	for _, ab := range byAssignee {
		stats.ByAssignee = append(stats.ByAssignee, *ab)
	}
	sort.Slice(stats.ByAssignee, func(i, j int) bool {
		a, b := stats.ByAssignee[i], stats.ByAssignee[j]
		if (a.AssigneeID == nil) != (b.AssigneeID == nil) {
			return b.AssigneeID == nil // unassigned group last
		}
		return a.AssigneeName < b.AssigneeName
	})
	return stats, nil
}

func getTask(ctx context.Context, q querier, id int64) (models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tasks WHERE id = ?`, taskColumns), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, apperr.NotFound("task not found")
	}
	return t, err
}

func scanTask(sc scanner) (models.Task, error) {
	var t models.Task
	var assignedTo sql.NullInt64
	var dueDate, completedAt sql.NullTime
	var estimatedHours, actualHours sql.NullFloat64
	var depsJSON string

	err := sc.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &assignedTo,
		&t.Status, &t.Priority, &dueDate, &estimatedHours, &actualHours,
		&depsJSON, &t.CreatedBy, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, err
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("scan task: %w", err)
	}

	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.Int64
	}
	if dueDate.Valid {
		d := dueDate.Time
		t.DueDate = &d
	}
	if completedAt.Valid {
		c := completedAt.Time
		t.CompletedAt = &c
	}
	if estimatedHours.Valid {
		t.EstimatedHours = &estimatedHours.Float64
	}
	if actualHours.Valid {
		t.ActualHours = &actualHours.Float64
	}
	t.Dependencies = decodeIDs(depsJSON)
	return t, nil
}

// validateDependencies checks that every dependency resolves to a task in
// the same project, rejects self references, and refuses edits that would
// close a cycle. It returns the deduplicated set.
func validateDependencies(ctx context.Context, q querier, projectID, taskID int64, deps []int64) ([]int64, error) {
	if len(deps) == 0 {
		return []int64{}, nil
	}

	seen := map[int64]struct{}{}
	clean := make([]int64, 0, len(deps))
	for _, dep := range deps {
		if taskID != 0 && dep == taskID {
			return nil, apperr.Invalid("a task cannot depend on itself")
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		clean = append(clean, dep)

		var depProject int64
		err := q.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = ?`, dep).Scan(&depProject)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("dependency task %d not found", dep)
		}
		if err != nil {
			return nil, fmt.Errorf("check dependency %d: %w", dep, err)
		}
		if depProject != projectID {
			return nil, apperr.NotFoundf("dependency task %d belongs to another project", dep)
		}
	}

	if taskID != 0 {
		if err := checkCycle(ctx, q, projectID, taskID, clean); err != nil {
			return nil, err
		}
	}
	return clean, nil
}

// checkCycle walks the project's dependency graph with the candidate edge
// set in place of the task's stored edges and rejects any path that leads
// back to the task.
func checkCycle(ctx context.Context, q querier, projectID, taskID int64, deps []int64) error {
	rows, err := q.QueryContext(ctx, `SELECT id, dependencies FROM tasks WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("load dependency graph: %w", err)
	}
	defer rows.Close()

	adjacent := map[int64][]int64{}
	for rows.Next() {
		var id int64
		var depsJSON string
		if err := rows.Scan(&id, &depsJSON); err != nil {
			return fmt.Errorf("scan dependency graph: %w", err)
		}
		adjacent[id] = decodeIDs(depsJSON)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	adjacent[taskID] = deps

	visited := map[int64]struct{}{}
	var walk func(from int64) bool
	walk = func(from int64) bool {
		for _, next := range adjacent[from] {
			if next == taskID {
				return true
			}
			if _, done := visited[next]; done {
				continue
			}
			visited[next] = struct{}{}
			if walk(next) {
				return true
			}
		}
		return false
	}
	if walk(taskID) {
		return apperr.Invalid("dependencies would create a cycle")
	}
	return nil
}
