package auth

import (
	"testing"
	"time"

	"atelier/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	user := models.User{ID: 7, Role: RoleProjectManager}

	token, err := NewToken("secret", user, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	identity, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if identity.UserID != 7 {
		t.Errorf("UserID = %d, want 7", identity.UserID)
	}
	if identity.Role != RoleProjectManager {
		t.Errorf("Role = %q, want %q", identity.Role, RoleProjectManager)
	}
}

func TestParseToken_Failures(t *testing.T) {
	user := models.User{ID: 1, Role: RoleDesigner}

	token, err := NewToken("secret", user, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Error("ParseToken accepted a token signed with a different secret")
	}
	if _, err := ParseToken("secret", "not.a.token"); err == nil {
		t.Error("ParseToken accepted garbage")
	}

	expired, err := NewToken("secret", user, -time.Minute)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if _, err := ParseToken("secret", expired); err == nil {
		t.Error("ParseToken accepted an expired token")
	}
}

func TestAccessPredicates(t *testing.T) {
	managerID := int64(2)
	project := models.Project{ID: 1, CreatedBy: 1, ManagerID: &managerID}

	cases := []struct {
		name            string
		identity        Identity
		entityCreatedBy int64
		manage, mutate  bool
	}{
		{"admin", Identity{UserID: 99, Role: RoleAdmin}, 5, true, true},
		{"project manager", Identity{UserID: 2, Role: RoleProjectManager}, 5, true, true},
		{"project creator", Identity{UserID: 1, Role: RoleDesigner}, 5, true, true},
		{"entity creator", Identity{UserID: 5, Role: RoleDesigner}, 5, false, true},
		{"bystander", Identity{UserID: 8, Role: RoleDesigner}, 5, false, false},
		{"customer", Identity{UserID: 8, Role: RoleCustomer}, 5, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanManageProject(tc.identity, project); got != tc.manage {
				t.Errorf("CanManageProject = %v, want %v", got, tc.manage)
			}
			if got := CanMutate(tc.identity, project, tc.entityCreatedBy); got != tc.mutate {
				t.Errorf("CanMutate = %v, want %v", got, tc.mutate)
			}
		})
	}
}
