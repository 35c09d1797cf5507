package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the staff role carried in access tokens. Only its presence is
// checked today; per-route role rules are not enforced.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleCashier Role = "cashier"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCashier:
		return true
	}
	return false
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	TenantID uuid.UUID
	StaffID  uuid.UUID
	Role     Role
	JTI      string
}

// AccessTokenClaims is the verified content of a staff access token.
type AccessTokenClaims struct {
	TenantID uuid.UUID `json:"tenant_id"`
	StaffID  uuid.UUID `json:"staff_id"`
	Role     Role      `json:"role"`
	jwt.RegisteredClaims
}
