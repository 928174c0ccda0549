package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"tallerpos/backend/internal/config"
	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/logging"
	"tallerpos/backend/internal/store"
	pgstore "tallerpos/backend/internal/store/postgres"
)

func main() {
	createSuperuser := flag.Bool("create-superuser", false, "Create a super administrator if the email is not registered")
	email := flag.String("email", "", "Super administrator email (default SETUP_ADMIN_EMAIL)")
	password := flag.String("password", "", "Super administrator password (default SETUP_ADMIN_PASSWORD)")
	name := flag.String("name", "Super Admin", "Super administrator display name")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "could not read .env: %v\n", err)
	}
	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogDir)
	defer logger.Close()
	log := logger.Component("setup")

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	branchID, err := pg.EnsureDefaults(ctx)
	if err != nil {
		log.Fatalf("ensure defaults: %v", err)
	}
	log.WithField("branch_id", branchID).Info("schema and defaults in place")

	if !*createSuperuser {
		return
	}

	req := superuserRequest{
		Name:     *name,
		Email:    firstNonEmpty(*email, os.Getenv("SETUP_ADMIN_EMAIL")),
		Password: firstNonEmpty(*password, os.Getenv("SETUP_ADMIN_PASSWORD")),
		BranchID: branchID,
	}
	user, created, err := ensureSuperuser(ctx, pg, req)
	if err != nil {
		log.Fatalf("create superuser: %v", err)
	}
	if !created {
		log.WithField("email", user.Email).Info("user already exists, nothing to do")
		return
	}
	log.WithField("email", user.Email).WithField("id", user.ID).Info("super administrator created")
}

type userStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
}

type superuserRequest struct {
	Name     string
	Email    string
	Password string
	BranchID int64
}

// ensureSuperuser creates the account unless the email is already registered.
// The boolean reports whether a user was created.
func ensureSuperuser(ctx context.Context, users userStore, req superuserRequest) (*domain.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return nil, false, errors.New("a valid email is required (-email or SETUP_ADMIN_EMAIL)")
	}
	if len(req.Password) < 6 {
		return nil, false, errors.New("password must be at least 6 characters (-password or SETUP_ADMIN_PASSWORD)")
	}

	existing, err := users.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Super Admin"
	}

	created, err := users.CreateUser(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleSuperAdmin,
		BranchID:     req.BranchID,
		Status:       domain.StatusActive,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
