package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in caller.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller's role or tenant does not allow the operation.
	ErrForbidden = errors.New("forbidden")
)

// Kind tags which variant a Principal holds.
type Kind int

const (
	Anonymous Kind = iota
	Staff
	Patient
)

func (k Kind) String() string {
	switch k {
	case Staff:
		return "staff"
	case Patient:
		return "patient"
	default:
		return "anonymous"
	}
}

// Staff roles.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleReceptionist = "receptionist"
)

// Principal is the caller identity resolved once at the HTTP boundary.
// Staff principals carry UserID, TenantID and Role; patient principals carry
// UserID (the app user) and Phone.
type Principal struct {
	Kind     Kind
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
	Phone    string
}

// AnonymousPrincipal is the zero principal.
func AnonymousPrincipal() Principal {
	return Principal{Kind: Anonymous}
}

// StaffPrincipal builds a clinic staff principal.
func StaffPrincipal(userID, tenantID uuid.UUID, role string) Principal {
	return Principal{Kind: Staff, UserID: userID, TenantID: tenantID, Role: role}
}

// PatientPrincipal builds a patient (app user) principal.
func PatientPrincipal(appUserID uuid.UUID, phone string) Principal {
	return Principal{Kind: Patient, UserID: appUserID, Phone: phone}
}

// IsStaffOf reports whether p is staff of the given tenant.
func (p Principal) IsStaffOf(tenantID uuid.UUID) bool {
	return p.Kind == Staff && p.TenantID == tenantID
}

// RequireStaffOf fails unless p is staff of tenantID.
func (p Principal) RequireStaffOf(tenantID uuid.UUID) error {
	switch {
	case p.Kind == Anonymous:
		return ErrUnauthenticated
	case !p.IsStaffOf(tenantID):
		return ErrForbidden
	}
	return nil
}

// RequireAdminOf fails unless p is an admin of tenantID.
func (p Principal) RequireAdminOf(tenantID uuid.UUID) error {
	if err := p.RequireStaffOf(tenantID); err != nil {
		return err
	}
	if p.Role != RoleAdmin {
		return ErrForbidden
	}
	return nil
}

type ctxKey string

const principalKey ctxKey = "caretoken.principal"

// WithPrincipal stores the caller principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal, defaulting to anonymous.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return AnonymousPrincipal()
	}
	return p
}
