package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caretoken/internal/tenancy"
)

func newTestSessions(t *testing.T) (*Sessions, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessions("test-secret", time.Hour, client, nil), mr
}

func TestIssueAndResolveStaff(t *testing.T) {
	s, mr := newTestSessions(t)
	ctx := context.Background()
	p := tenancy.StaffPrincipal(uuid.New(), uuid.New(), tenancy.RoleDoctor)

	token, issued, err := s.Issue(ctx, p)
	require.NoError(t, err)
	assert.True(t, mr.Exists(sessionKey(issued.ID)))
	assert.Equal(t, time.Hour, mr.TTL(sessionKey(issued.ID)))

	got, err := s.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p, got.Principal)
	assert.Equal(t, issued.ID, got.ID)
}

func TestIssueAndResolvePatient(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()
	p := tenancy.PatientPrincipal(uuid.New(), "+919800000001")

	token, _, err := s.Issue(ctx, p)
	require.NoError(t, err)
	got, err := s.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, tenancy.Patient, got.Principal.Kind)
	assert.Equal(t, "+919800000001", got.Principal.Phone)
}

func TestIssueRejectsAnonymous(t *testing.T) {
	s, _ := newTestSessions(t)
	_, _, err := s.Issue(context.Background(), tenancy.AnonymousPrincipal())
	assert.Error(t, err)
}

func TestResolveRevokedSession(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()
	token, issued, err := s.Issue(ctx, tenancy.StaffPrincipal(uuid.New(), uuid.New(), tenancy.RoleAdmin))
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, issued.ID))
	_, err = s.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestResolveExpiredSession(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()
	token, _, err := s.Issue(ctx, tenancy.StaffPrincipal(uuid.New(), uuid.New(), tenancy.RoleAdmin))
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsForeignTokens(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()

	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return signed
	}
	valid := Claims{
		Type:     typeStaff,
		Role:     tenancy.RoleAdmin,
		TenantID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	badRole := valid
	badRole.Role = "owner"
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), valid),
		"unknown role": sign(jwt.SigningMethodHS256, []byte("test-secret"), badRole),
		"no expiry":    sign(jwt.SigningMethodHS256, []byte("test-secret"), noExpiry),
		"none alg":     sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Resolve(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestSessionsWithoutRedisCheckSignatureOnly(t *testing.T) {
	s := NewSessions("test-secret", 0, nil, nil)
	ctx := context.Background()
	token, issued, err := s.Issue(ctx, tenancy.StaffPrincipal(uuid.New(), uuid.New(), tenancy.RoleAdmin))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), issued.ExpiresAt, time.Minute)

	require.NoError(t, s.Revoke(ctx, issued.ID))
	_, err = s.Resolve(ctx, token)
	assert.NoError(t, err)
}
