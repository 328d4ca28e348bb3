package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestPrincipalFromContextDefaultsToAnonymous(t *testing.T) {
	p := PrincipalFromContext(context.Background())
	if p.Kind != Anonymous {
		t.Fatalf("expected anonymous, got %s", p.Kind)
	}
}

func TestPrincipalRoundTrip(t *testing.T) {
	tenant := uuid.New()
	staff := StaffPrincipal(uuid.New(), tenant, RoleReceptionist)
	got := PrincipalFromContext(WithPrincipal(context.Background(), staff))
	if got != staff {
		t.Fatalf("expected %+v, got %+v", staff, got)
	}
}

func TestPrincipalChecks(t *testing.T) {
	tenant := uuid.New()
	other := uuid.New()

	tests := []struct {
		name      string
		p         Principal
		wantStaff error
		wantAdmin error
	}{
		{"anonymous", AnonymousPrincipal(), ErrUnauthenticated, ErrUnauthenticated},
		{"patient", PatientPrincipal(uuid.New(), "+15550001"), ErrForbidden, ErrForbidden},
		{"receptionist", StaffPrincipal(uuid.New(), tenant, RoleReceptionist), nil, ErrForbidden},
		{"admin", StaffPrincipal(uuid.New(), tenant, RoleAdmin), nil, nil},
		{"admin of other clinic", StaffPrincipal(uuid.New(), other, RoleAdmin), ErrForbidden, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.RequireStaffOf(tenant); !errors.Is(err, tt.wantStaff) {
				t.Fatalf("RequireStaffOf: want %v, got %v", tt.wantStaff, err)
			}
			if err := tt.p.RequireAdminOf(tenant); !errors.Is(err, tt.wantAdmin) {
				t.Fatalf("RequireAdminOf: want %v, got %v", tt.wantAdmin, err)
			}
		})
	}
}
