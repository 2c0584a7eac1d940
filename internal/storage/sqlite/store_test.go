package sqlite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atelier-test.db")
	store, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, s *Store, name, role string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{
		Name:   name,
		Email:  fmt.Sprintf("%s@studio.test", name),
		Role:   role,
		Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func seedProject(t *testing.T, s *Store, owner models.User) models.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), models.Project{
		Name:      "Penthouse refit",
		CreatedBy: owner.ID,
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func TestCreateUser_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, models.User{Email: "no-name@studio.test"}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("missing name: kind = %v, want KindInvalid", apperr.KindOf(err))
	}
	if _, err := store.CreateUser(ctx, models.User{Name: "x", Email: "x@studio.test", Role: "janitor"}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("bad role: kind = %v, want KindInvalid", apperr.KindOf(err))
	}

	u := seedUser(t, store, "maya", auth.RoleDesigner)
	if u.Role != auth.RoleDesigner {
		t.Errorf("Role = %q, want %q", u.Role, auth.RoleDesigner)
	}
	if _, err := store.CreateUser(ctx, models.User{Name: "maya2", Email: "maya@studio.test"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("duplicate email: kind = %v, want KindConflict", apperr.KindOf(err))
	}
}

func TestProjectLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner", auth.RoleProjectManager)

	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	p, err := store.CreateProject(ctx, models.Project{
		Name:             "Loft conversion",
		CreatedBy:        owner.ID,
		Budget:           250000,
		EstimatedEndDate: &end,
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Status != models.ProjectPlanning {
		t.Errorf("Status = %q, want planning", p.Status)
	}
	if p.Budget != 250000 {
		t.Errorf("Budget = %v, want 250000", p.Budget)
	}
	if p.EstimatedEndDate == nil || !p.EstimatedEndDate.Equal(end) {
		t.Errorf("EstimatedEndDate = %v, want %v", p.EstimatedEndDate, end)
	}

	p, err = store.UpdateProjectStatus(ctx, p.ID, models.ProjectInProgress)
	if err != nil {
		t.Fatalf("UpdateProjectStatus: %v", err)
	}
	if p.Status != models.ProjectInProgress {
		t.Errorf("Status = %q, want in_progress", p.Status)
	}

	if _, err := store.UpdateProjectStatus(ctx, p.ID, "archived"); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("bad status: kind = %v, want KindInvalid", apperr.KindOf(err))
	}
	if _, err := store.UpdateProjectStatus(ctx, 9999, models.ProjectOnHold); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing project: kind = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestGetProject_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetProject(context.Background(), 42); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("kind = %v, want KindNotFound", apperr.KindOf(err))
	}
}
