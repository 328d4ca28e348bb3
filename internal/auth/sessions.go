// Package auth issues and verifies bearer sessions for clinic staff and patients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

var (
	// ErrInvalidToken is returned for a malformed, expired or badly signed token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrSessionRevoked is returned when the token's session is no longer allow-listed.
	ErrSessionRevoked = errors.New("auth: session revoked")
)

const (
	typeStaff   = "staff"
	typePatient = "patient"
)

// Claims is the JWT payload of a session.
type Claims struct {
	Type     string `json:"typ"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tid,omitempty"`
	Phone    string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Session is a verified bearer session.
type Session struct {
	ID        string
	Principal tenancy.Principal
	ExpiresAt time.Time
}

// Sessions signs HS256 tokens and keeps an allow-list of live sessions in
// Redis. Without a Redis client only the signature and expiry are checked.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
	logger *logging.Logger
	now    func() time.Time
}

// NewSessions creates a session issuer.
func NewSessions(secret string, ttl time.Duration, client *redis.Client, logger *logging.Logger) *Sessions {
	if secret == "" {
		panic("auth: signing secret required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sessions{
		secret: []byte(secret),
		ttl:    ttl,
		redis:  client,
		logger: logger,
		now:    time.Now,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Issue signs a token for p and records the session.
func (s *Sessions) Issue(ctx context.Context, p tenancy.Principal) (string, *Session, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	switch p.Kind {
	case tenancy.Staff:
		claims.Type = typeStaff
		claims.Role = p.Role
		claims.TenantID = p.TenantID.String()
	case tenancy.Patient:
		claims.Type = typePatient
		claims.Phone = p.Phone
	default:
		return "", nil, fmt.Errorf("auth: cannot issue a session for %s principal", p.Kind)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, sessionKey(claims.ID), p.UserID.String(), s.ttl).Err(); err != nil {
			return "", nil, fmt.Errorf("auth: store session: %w", err)
		}
	}
	s.logger.Info("session issued", "session_id", claims.ID, "kind", p.Kind.String(), "tenant_id", claims.TenantID)
	return signed, &Session{ID: claims.ID, Principal: p, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Resolve verifies a bearer token and returns its session.
func (s *Sessions) Resolve(ctx context.Context, token string) (*Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	principal, err := claims.principal()
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		n, err := s.redis.Exists(ctx, sessionKey(claims.ID)).Result()
		if err != nil {
			return nil, fmt.Errorf("auth: check session: %w", err)
		}
		if n == 0 {
			return nil, ErrSessionRevoked
		}
	}
	return &Session{ID: claims.ID, Principal: principal, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke removes a session from the allow-list.
func (s *Sessions) Revoke(ctx context.Context, id string) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	s.logger.Info("session revoked", "session_id", id)
	return nil
}

func (c Claims) principal() (tenancy.Principal, error) {
	if c.ID == "" {
		return tenancy.Principal{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return tenancy.Principal{}, ErrInvalidToken
	}
	switch c.Type {
	case typeStaff:
		tenantID, err := uuid.Parse(c.TenantID)
		if err != nil {
			return tenancy.Principal{}, ErrInvalidToken
		}
		switch c.Role {
		case tenancy.RoleAdmin, tenancy.RoleDoctor, tenancy.RoleReceptionist:
		default:
			return tenancy.Principal{}, ErrInvalidToken
		}
		return tenancy.StaffPrincipal(userID, tenantID, c.Role), nil
	case typePatient:
		return tenancy.PatientPrincipal(userID, c.Phone), nil
	}
	return tenancy.Principal{}, ErrInvalidToken
}
