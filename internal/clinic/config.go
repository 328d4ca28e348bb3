// Package clinic provides per-clinic settings such as display name and timezone.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidSettings is returned when submitted settings fail validation.
var ErrInvalidSettings = errors.New("invalid clinic settings")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Settings holds the clinic-level values the queue engine depends on.
type Settings struct {
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug,omitempty"`
	City      string    `json:"city,omitempty"`
	Timezone  string    `json:"timezone"` // IANA name, e.g. "Asia/Kolkata"
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns settings used for a clinic that has not been configured.
func DefaultSettings(orgID, timezone string) *Settings {
	if timezone == "" {
		timezone = "UTC"
	}
	return &Settings{
		OrgID:    orgID,
		Timezone: timezone,
	}
}

// Validate checks the slug format and timezone.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.OrgID) == "" {
		return fmt.Errorf("%w: org_id required", ErrInvalidSettings)
	}
	if s.Slug != "" && !slugPattern.MatchString(s.Slug) {
		return fmt.Errorf("%w: slug must be lowercase letters, digits and hyphens", ErrInvalidSettings)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, s.Timezone)
	}
	return nil
}

// Location resolves the clinic timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Store provides persistence for clinic settings.
type Store struct {
	redis           *redis.Client
	defaultTimezone string
}

// NewStore creates a new clinic settings store.
func NewStore(redisClient *redis.Client, defaultTimezone string) *Store {
	return &Store{redis: redisClient, defaultTimezone: defaultTimezone}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("clinic:settings:%s", orgID)
}

// Get retrieves clinic settings, returning defaults if not found.
func (s *Store) Get(ctx context.Context, orgID string) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return DefaultSettings(orgID, s.defaultTimezone), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Set validates and saves clinic settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(settings.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}

// Location returns the timezone configured for a tenant.
func (s *Store) Location(ctx context.Context, tenantID uuid.UUID) (*time.Location, error) {
	settings, err := s.Get(ctx, tenantID.String())
	if err != nil {
		return nil, err
	}
	return settings.Location(), nil
}

// FixedLocation resolves every tenant to the same timezone. It is used when
// Redis is not configured.
type FixedLocation struct {
	Loc *time.Location
}

// Location implements the queue's clinic locator.
func (f FixedLocation) Location(context.Context, uuid.UUID) (*time.Location, error) {
	if f.Loc == nil {
		return time.UTC, nil
	}
	return f.Loc, nil
}
