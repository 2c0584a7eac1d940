package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"atelier/internal/apperr"
	"atelier/internal/models"
)

const changeOrderColumns = `id, project_id, change_order_number, title, description, reason,
    cost_impact, time_impact_days, status, requested_by, approved_by,
    requested_at, approved_at, implemented_at, created_at, updated_at`

// CreateChangeOrder inserts a pending change order with a fresh number.
// The number sequence is scoped to (project, year-month) of the request
// time and comes from a counter row incremented inside the same
// transaction, so concurrent creates cannot collide.
func (s *Store) CreateChangeOrder(ctx context.Context, co models.ChangeOrder) (models.ChangeOrder, error) {
	co.Title = strings.TrimSpace(co.Title)
	co.Description = strings.TrimSpace(co.Description)
	if co.Title == "" {
		return models.ChangeOrder{}, apperr.Invalid("change order title is required")
	}
	if co.Description == "" {
		return models.ChangeOrder{}, apperr.Invalid("change order description is required")
	}

	var created models.ChangeOrder
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		project, err := getProject(ctx, tx, co.ProjectID)
		if err != nil {
			return err
		}
		if project.Status.Terminal() {
			return apperr.Conflictf("project is %s and no longer accepts change orders", project.Status)
		}

		now := time.Now().UTC()
		number, err := nextChangeOrderNumber(ctx, tx, co.ProjectID, now)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO change_orders(project_id, change_order_number, title, description, reason,
                cost_impact, time_impact_days, status, requested_by, requested_at, created_at, updated_at)
             VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			co.ProjectID, number, co.Title, co.Description, strings.TrimSpace(co.Reason),
			co.CostImpact, co.TimeImpactDays, string(models.ChangeOrderPending),
			co.RequestedBy, now, now, now)
		if err != nil {
			return fmt.Errorf("insert change order: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("change order id: %w", err)
		}
		created, err = getChangeOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.ChangeOrder{}, err
	}
	return created, nil
}

// nextChangeOrderNumber increments the per-(project, month) counter and
// formats CO<yyyy><mm><seq>.
func nextChangeOrderNumber(ctx context.Context, tx *sql.Tx, projectID int64, now time.Time) (string, error) {
	period := now.Format("200601")
	var seq int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO change_order_counters(project_id, period, seq) VALUES(?, ?, 1)
         ON CONFLICT(project_id, period) DO UPDATE SET seq = seq + 1
         RETURNING seq`, projectID, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next change order number: %w", err)
	}
	return fmt.Sprintf("CO%s%03d", period, seq), nil
}

// GetChangeOrder fetches a change order by id.
func (s *Store) GetChangeOrder(ctx context.Context, id int64) (models.ChangeOrder, error) {
	return getChangeOrder(ctx, s.db, id)
}

// ListChangeOrders returns a project's change orders, newest first.
func (s *Store) ListChangeOrders(ctx context.Context, projectID int64) ([]models.ChangeOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM change_orders WHERE project_id = ? ORDER BY requested_at DESC, id DESC`, changeOrderColumns),
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list change orders: %w", err)
	}
	defer rows.Close()

	var orders []models.ChangeOrder
	for rows.Next() {
		co, err := scanChangeOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, co)
	}
	return orders, rows.Err()
}

// UpdateChangeOrder edits descriptive and impact fields while the order is
// still pending. Decided orders are immutable.
func (s *Store) UpdateChangeOrder(ctx context.Context, id int64, upd models.ChangeOrderUpdate) (models.ChangeOrder, error) {
	var updated models.ChangeOrder
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getChangeOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != models.ChangeOrderPending {
			return apperr.Conflictf("change order is %s; only pending change orders can be edited", cur.Status)
		}

		if upd.Title != nil {
			title := strings.TrimSpace(*upd.Title)
			if title == "" {
				return apperr.Invalid("change order title is required")
			}
			cur.Title = title
		}
		if upd.Description != nil {
			desc := strings.TrimSpace(*upd.Description)
			if desc == "" {
				return apperr.Invalid("change order description is required")
			}
			cur.Description = desc
		}
		if upd.Reason != nil {
			cur.Reason = strings.TrimSpace(*upd.Reason)
		}
		if upd.CostImpact != nil {
			cur.CostImpact = *upd.CostImpact
		}
		if upd.TimeImpactDays != nil {
			cur.TimeImpactDays = *upd.TimeImpactDays
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE change_orders SET title = ?, description = ?, reason = ?, cost_impact = ?,
                time_impact_days = ?, updated_at = ?
             WHERE id = ? AND status = 'pending'`,
			cur.Title, cur.Description, cur.Reason, cur.CostImpact, cur.TimeImpactDays,
			time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("update change order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Conflict("change order left pending concurrently")
		}
		updated, err = getChangeOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.ChangeOrder{}, err
	}
	return updated, nil
}

// DecideChangeOrder approves or rejects a pending change order. Approval
// with a nonzero impact adjusts the project's budget and estimated end
// date in the same transaction as the status change, so both effects are
// visible together or not at all.
func (s *Store) DecideChangeOrder(ctx context.Context, id int64, decision models.ChangeOrderStatus, approverID int64) (models.ChangeOrder, error) {
	if decision != models.ChangeOrderApproved && decision != models.ChangeOrderRejected {
		return models.ChangeOrder{}, apperr.Invalidf("decision must be %q or %q", models.ChangeOrderApproved, models.ChangeOrderRejected)
	}

	var decided models.ChangeOrder
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getChangeOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != models.ChangeOrderPending {
			return apperr.Conflictf("change order is %s; only pending change orders can be decided", cur.Status)
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE change_orders SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
             WHERE id = ? AND status = 'pending'`,
			string(decision), approverID, now, now, id)
		if err != nil {
			return fmt.Errorf("decide change order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Conflict("change order was decided concurrently")
		}

		if decision == models.ChangeOrderApproved && (cur.CostImpact != 0 || cur.TimeImpactDays != 0) {
			if err := applyImpact(ctx, tx, cur.ProjectID, cur.CostImpact, cur.TimeImpactDays, now); err != nil {
				return err
			}
		}
		decided, err = getChangeOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.ChangeOrder{}, err
	}
	return decided, nil
}

// applyImpact shifts the project budget and estimated end date by the
// approved deltas. Runs inside the approval transaction.
func applyImpact(ctx context.Context, tx *sql.Tx, projectID int64, costDelta float64, daysDelta int, now time.Time) error {
	project, err := getProject(ctx, tx, projectID)
	if err != nil {
		return err
	}
	var endDate any
	if project.EstimatedEndDate != nil {
		endDate = project.EstimatedEndDate.AddDate(0, 0, daysDelta)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE projects SET budget = ?, estimated_end_date = ?, updated_at = ? WHERE id = ?`,
		project.Budget+costDelta, endDate, now, projectID)
	if err != nil {
		return fmt.Errorf("apply change order impact: %w", err)
	}
	return nil
}

// ImplementChangeOrder marks an approved change order implemented. The
// budget and timeline already moved at approval.
func (s *Store) ImplementChangeOrder(ctx context.Context, id int64) (models.ChangeOrder, error) {
	var implemented models.ChangeOrder
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getChangeOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != models.ChangeOrderApproved {
			return apperr.Conflictf("change order is %s; only approved change orders can be implemented", cur.Status)
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE change_orders SET status = ?, implemented_at = ?, updated_at = ?
             WHERE id = ? AND status = 'approved'`,
			string(models.ChangeOrderImplemented), now, now, id)
		if err != nil {
			return fmt.Errorf("implement change order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.Conflict("change order left approved concurrently")
		}
		implemented, err = getChangeOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.ChangeOrder{}, err
	}
	return implemented, nil
}

// ChangeOrderStatistics aggregates a project's change orders: counts per
// status, impact sums over approved and implemented orders, and the
// approval rate.
func (s *Store) ChangeOrderStatistics(ctx context.Context, projectID int64) (models.ChangeOrderStatistics, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return models.ChangeOrderStatistics{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, cost_impact, time_impact_days FROM change_orders WHERE project_id = ?`, projectID)
	if err != nil {
		return models.ChangeOrderStatistics{}, fmt.Errorf("change order statistics: %w", err)
	}
	defer rows.Close()

	var stats models.ChangeOrderStatistics
	for rows.Next() {
		var status models.ChangeOrderStatus
		var costImpact float64
		var timeImpact int
		if err := rows.Scan(&status, &costImpact, &timeImpact); err != nil {
			return models.ChangeOrderStatistics{}, fmt.Errorf("scan change order stats: %w", err)
		}
		stats.Total++
		switch status {
		case models.ChangeOrderPending:
			stats.Pending++
		case models.ChangeOrderApproved:
			stats.Approved++
		case models.ChangeOrderRejected:
			stats.Rejected++
		case models.ChangeOrderImplemented:
			stats.Implemented++
		}
		if status == models.ChangeOrderApproved || status == models.ChangeOrderImplemented {
			stats.TotalCostImpact += costImpact
			stats.TotalTimeImpactDays += timeImpact
		}
	}
	if err := rows.Err(); err != nil {
		return models.ChangeOrderStatistics{}, err
	}

	if stats.Total > 0 {
		stats.ApprovalRate = math.Round(float64(stats.Approved+stats.Implemented) / float64(stats.Total) * 100)
	}
	return stats, nil
}

func getChangeOrder(ctx context.Context, q querier, id int64) (models.ChangeOrder, error) {
	co, err := scanChangeOrder(q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM change_orders WHERE id = ?`, changeOrderColumns), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChangeOrder{}, apperr.NotFound("change order not found")
	}
	return co, err
}

func scanChangeOrder(sc scanner) (models.ChangeOrder, error) {
	var co models.ChangeOrder
	var approvedBy sql.NullInt64
	var approvedAt, implementedAt sql.NullTime

	err := sc.Scan(&co.ID, &co.ProjectID, &co.Number, &co.Title, &co.Description, &co.Reason,
		&co.CostImpact, &co.TimeImpactDays, &co.Status, &co.RequestedBy, &approvedBy,
		&co.RequestedAt, &approvedAt, &implementedAt, &co.CreatedAt, &co.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChangeOrder{}, err
	}
	if err != nil {
		return models.ChangeOrder{}, fmt.Errorf("scan change order: %w", err)
	}

	if approvedBy.Valid {
		co.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		co.ApprovedAt = &t
	}
	if implementedAt.Valid {
		t := implementedAt.Time
		co.ImplementedAt = &t
	}
	return co, nil
}
