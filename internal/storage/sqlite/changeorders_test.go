package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

func seedChangeOrder(t *testing.T, s *Store, project models.Project, requester models.User, cost float64, days int) models.ChangeOrder {
	t.Helper()
	co, err := s.CreateChangeOrder(context.Background(), models.ChangeOrder{
		ProjectID:      project.ID,
		Title:          "Add skylight",
		Description:    "Cut and glaze a roof opening above the stairwell",
		Reason:         "client request",
		CostImpact:     cost,
		TimeImpactDays: days,
		RequestedBy:    requester.ID,
	})
	if err != nil {
		t.Fatalf("CreateChangeOrder: %v", err)
	}
	return co
}

func TestCreateChangeOrder_NumberSequence(t *testing.T) {
	store := newTestStore(t)
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)
	project := seedProject(t, store, owner)

	prefix := "CO" + time.Now().UTC().Format("200601")

	first := seedChangeOrder(t, store, project, owner, 0, 0)
	second := seedChangeOrder(t, store, project, owner, 0, 0)
	if first.Number != prefix+"001" {
		t.Errorf("first number = %q, want %q", first.Number, prefix+"001")
	}
	if second.Number != prefix+"002" {
		t.Errorf("second number = %q, want %q", second.Number, prefix+"002")
	}
	if first.Status != models.ChangeOrderPending {
		t.Errorf("Status = %q, want pending", first.Status)
	}
	if first.RequestedAt.IsZero() {
		t.Error("RequestedAt is zero")
	}

	// Sequences are scoped per project.
	other, err := store.CreateProject(context.Background(), models.Project{Name: "Other", CreatedBy: owner.ID})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	otherCO := seedChangeOrder(t, store, other, owner, 0, 0)
	if otherCO.Number != prefix+"001" {
		t.Errorf("other project number = %q, want %q", otherCO.Number, prefix+"001")
	}
}

func TestCreateChangeOrder_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)
	project := seedProject(t, store, owner)

	if _, err := store.CreateChangeOrder(ctx, models.ChangeOrder{ProjectID: project.ID, Description: "d", RequestedBy: owner.ID}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("missing title: kind = %v, want KindInvalid", apperr.KindOf(err))
	}
	if _, err := store.CreateChangeOrder(ctx, models.ChangeOrder{ProjectID: project.ID, Title: "t", RequestedBy: owner.ID}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("missing description: kind = %v, want KindInvalid", apperr.KindOf(err))
	}
	if _, err := store.CreateChangeOrder(ctx, models.ChangeOrder{ProjectID: 9999, Title: "t", Description: "d", RequestedBy: owner.ID}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing project: kind = %v, want KindNotFound", apperr.KindOf(err))
	}

	if _, err := store.UpdateProjectStatus(ctx, project.ID, models.ProjectCancelled); err != nil {
		t.Fatalf("UpdateProjectStatus: %v", err)
	}
	_, err := store.CreateChangeOrder(ctx, models.ChangeOrder{ProjectID: project.ID, Title: "t", Description: "d", RequestedBy: owner.ID})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("terminal project: kind = %v, want KindConflict", apperr.KindOf(err))
	}
}

func TestUpdateChangeOrder_PendingOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)
	project := seedProject(t, store, owner)
	co := seedChangeOrder(t, store, project, owner, 1000, 1)

	title := "Add two skylights"
	cost := 2500.0
	updated, err := store.UpdateChangeOrder(ctx, co.ID, models.ChangeOrderUpdate{Title: &title, CostImpact: &cost})
	if err != nil {
		t.Fatalf("UpdateChangeOrder: %v", err)
	}
	if updated.Title != title || updated.CostImpact != cost {
		t.Errorf("updated = %+v, want new title and cost", updated)
	}
	if updated.Description != co.Description || updated.TimeImpactDays != co.TimeImpactDays {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if updated.Number != co.Number {
		t.Errorf("Number changed on update: %q -> %q", co.Number, updated.Number)
	}

	if _, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderApproved, owner.ID); err != nil {
		t.Fatalf("DecideChangeOrder: %v", err)
	}
	if _, err := store.UpdateChangeOrder(ctx, co.ID, models.ChangeOrderUpdate{Title: &title}); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("edit after approval: kind = %v, want KindConflict", apperr.KindOf(err))
	}
}

func TestDecideChangeOrder_ApproveCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)

	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	project, err := store.CreateProject(ctx, models.Project{
		Name: "Villa", CreatedBy: owner.ID, Budget: 100000, EstimatedEndDate: &end,
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	co := seedChangeOrder(t, store, project, owner, 8000, 5)

	decided, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderApproved, owner.ID)
	if err != nil {
		t.Fatalf("DecideChangeOrder: %v", err)
	}
	if decided.Status != models.ChangeOrderApproved {
		t.Errorf("Status = %q, want approved", decided.Status)
	}
	if decided.ApprovedBy == nil || *decided.ApprovedBy != owner.ID {
		t.Errorf("ApprovedBy = %v, want %d", decided.ApprovedBy, owner.ID)
	}
	if decided.ApprovedAt == nil {
		t.Error("ApprovedAt is nil")
	}

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Budget != 108000 {
		t.Errorf("Budget = %v, want 108000", got.Budget)
	}
	wantEnd := time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC)
	if got.EstimatedEndDate == nil || !got.EstimatedEndDate.Equal(wantEnd) {
		t.Errorf("EstimatedEndDate = %v, want %v", got.EstimatedEndDate, wantEnd)
	}
}

func TestDecideChangeOrder_RejectDoesNotTouchProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)
	project := seedProject(t, store, owner)
	co := seedChangeOrder(t, store, project, owner, 9999, 9)

	rejected, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderRejected, owner.ID)
	if err != nil {
		t.Fatalf("DecideChangeOrder: %v", err)
	}
	if rejected.Status != models.ChangeOrderRejected {
		t.Errorf("Status = %q, want rejected", rejected.Status)
	}

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Budget != project.Budget {
		t.Errorf("Budget = %v, want unchanged %v", got.Budget, project.Budget)
	}
}

func TestDecideChangeOrder_Guards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)
	project := seedProject(t, store, owner)
	co := seedChangeOrder(t, store, project, owner, 0, 0)

	if _, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderImplemented, owner.ID); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("bad decision value: kind = %v, want KindInvalid", apperr.KindOf(err))
	}
	if _, err := store.DecideChangeOrder(ctx, 9999, models.ChangeOrderApproved, owner.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing order: kind = %v, want KindNotFound", apperr.KindOf(err))
	}

	if _, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderApproved, owner.ID); err != nil {
		t.Fatalf("DecideChangeOrder: %v", err)
	}
	if _, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderApproved, owner.ID); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("second decision: kind = %v, want KindConflict", apperr.KindOf(err))
	}
}

func TestImplementChangeOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)

	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	project, err := store.CreateProject(ctx, models.Project{
		Name: "Villa", CreatedBy: owner.ID, Budget: 100000, EstimatedEndDate: &end,
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	co := seedChangeOrder(t, store, project, owner, 8000, 5)

	if _, err := store.ImplementChangeOrder(ctx, co.ID); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("implement pending: kind = %v, want KindConflict", apperr.KindOf(err))
	}

	if _, err := store.DecideChangeOrder(ctx, co.ID, models.ChangeOrderApproved, owner.ID); err != nil {
		t.Fatalf("DecideChangeOrder: %v", err)
	}
	implemented, err := store.ImplementChangeOrder(ctx, co.ID)
	if err != nil {
		t.Fatalf("ImplementChangeOrder: %v", err)
	}
	if implemented.Status != models.ChangeOrderImplemented {
		t.Errorf("Status = %q, want implemented", implemented.Status)
	}
	if implemented.ImplementedAt == nil {
		t.Error("ImplementedAt is nil")
	}

	// Implementation must not re-apply the impact.
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Budget != 108000 {
		t.Errorf("Budget = %v, want 108000 after implement", got.Budget)
	}

	if _, err := store.ImplementChangeOrder(ctx, co.ID); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("double implement: kind = %v, want KindConflict", apperr.KindOf(err))
	}
}

func TestChangeOrderStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)
	project := seedProject(t, store, owner)

	empty, err := store.ChangeOrderStatistics(ctx, project.ID)
	if err != nil {
		t.Fatalf("ChangeOrderStatistics empty: %v", err)
	}
	if empty.Total != 0 || empty.ApprovalRate != 0 {
		t.Errorf("empty stats = %+v, want zeros", empty)
	}

	mk := func(cost float64, days int) models.ChangeOrder {
		t.Helper()
		co, err := store.CreateChangeOrder(ctx, models.ChangeOrder{
			ProjectID: project.ID, Title: "co", Description: fmt.Sprintf("impact %v/%d", cost, days),
			CostImpact: cost, TimeImpactDays: days, RequestedBy: owner.ID,
		})
		if err != nil {
			t.Fatalf("CreateChangeOrder: %v", err)
		}
		return co
	}

	approved := mk(5000, 3)
	implementedCO := mk(2000, 1)
	rejected := mk(100000, 30)
	mk(700, 0) // stays pending

	if _, err := store.DecideChangeOrder(ctx, approved.ID, models.ChangeOrderApproved, owner.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := store.DecideChangeOrder(ctx, implementedCO.ID, models.ChangeOrderApproved, owner.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := store.ImplementChangeOrder(ctx, implementedCO.ID); err != nil {
		t.Fatalf("implement: %v", err)
	}
	if _, err := store.DecideChangeOrder(ctx, rejected.ID, models.ChangeOrderRejected, owner.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	stats, err := store.ChangeOrderStatistics(ctx, project.ID)
	if err != nil {
		t.Fatalf("ChangeOrderStatistics: %v", err)
	}
	if stats.Total != 4 || stats.Pending != 1 || stats.Approved != 1 || stats.Rejected != 1 || stats.Implemented != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.TotalCostImpact != 7000 {
		t.Errorf("TotalCostImpact = %v, want 7000 (rejected and pending excluded)", stats.TotalCostImpact)
	}
	if stats.TotalTimeImpactDays != 4 {
		t.Errorf("TotalTimeImpactDays = %v, want 4", stats.TotalTimeImpactDays)
	}
	if stats.ApprovalRate != 50 { // round(2/4*100)
		t.Errorf("ApprovalRate = %v, want 50", stats.ApprovalRate)
	}
}
