// Command session issues a bearer token for a staff member or patient. It is
// the operator path for bootstrapping clinic staff before a login flow exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/caretoken/internal/auth"
	appconfig "github.com/wolfman30/caretoken/internal/config"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	kind := flag.String("kind", "staff", "Principal kind: staff or patient")
	userID := flag.String("user", "", "User id (generated when empty)")
	tenantID := flag.String("tenant", "", "Clinic id (required for staff)")
	role := flag.String("role", tenancy.RoleAdmin, "Staff role: admin, doctor or receptionist")
	phone := flag.String("phone", "", "Patient phone (required for patients)")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New("error")

	principal, err := buildPrincipal(*kind, *userID, *tenantID, *role, *phone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "error: JWT_SECRET is required")
		os.Exit(1)
	}

	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = client.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, session, err := auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL, client, logger).Issue(ctx, principal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: issue session: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "session %s expires %s\n", session.ID, session.ExpiresAt.Format(time.RFC3339))
	fmt.Println(token)
}

func buildPrincipal(kind, userID, tenantID, role, phone string) (tenancy.Principal, error) {
	uid := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			return tenancy.Principal{}, fmt.Errorf("invalid -user: %w", err)
		}
		uid = parsed
	}

	switch kind {
	case "staff":
		tid, err := uuid.Parse(tenantID)
		if err != nil {
			return tenancy.Principal{}, fmt.Errorf("invalid -tenant: %w", err)
		}
		switch role {
		case tenancy.RoleAdmin, tenancy.RoleDoctor, tenancy.RoleReceptionist:
		default:
			return tenancy.Principal{}, fmt.Errorf("unknown role %q", role)
		}
		return tenancy.StaffPrincipal(uid, tid, role), nil
	case "patient":
		if phone == "" {
			return tenancy.Principal{}, errors.New("-phone is required for patients")
		}
		return tenancy.PatientPrincipal(uid, phone), nil
	}
	return tenancy.Principal{}, fmt.Errorf("unknown kind %q", kind)
}
