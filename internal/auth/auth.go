// Package auth resolves caller identity from bearer tokens and provides
// the access predicates the API handlers compose into their preconditions.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"atelier/internal/models"
)

// Roles recognised by the access predicates.
const (
	RoleAdmin          = "admin"
	RoleProjectManager = "project_manager"
	RoleDesigner       = "designer"
	RoleCustomer       = "customer"
)

// ValidRoles enumerates the roles a user may hold.
var ValidRoles = map[string]struct{}{
	RoleAdmin:          {},
	RoleProjectManager: {},
	RoleDesigner:       {},
	RoleCustomer:       {},
}

// Identity is the resolved caller attached to each authenticated request.
type Identity struct {
	UserID int64
	Role   string
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewToken issues an HS256 token for the given user.
func NewToken(secret string, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns the caller identity.
func ParseToken(secret, raw string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject claim: %w", err)
	}
	return Identity{UserID: userID, Role: c.Role}, nil
}

// CanManageProject reports whether the caller holds management rights over
// the project: an admin, the project's manager, or its creator.
func CanManageProject(id Identity, p models.Project) bool {
	if id.Role == RoleAdmin {
		return true
	}
	if p.ManagerID != nil && *p.ManagerID == id.UserID {
		return true
	}
	return p.CreatedBy == id.UserID
}

// CanMutate reports whether the caller may edit an entity inside the
// project: management rights, or being the entity's creator.
func CanMutate(id Identity, p models.Project, entityCreatedBy int64) bool {
	if CanManageProject(id, p) {
		return true
	}
	return entityCreatedBy == id.UserID
}
