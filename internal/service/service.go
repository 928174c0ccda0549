package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"tallerpos/backend/internal/cache"
	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/logging"
	"tallerpos/backend/internal/scope"
	"tallerpos/backend/internal/store"
	"tallerpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Policy holds the role allow-lists checked before voiding.
type Policy struct {
	SaleVoidRoles   domain.RoleSet
	TicketVoidRoles domain.RoleSet
}

func DefaultPolicy() Policy {
	return Policy{
		SaleVoidRoles:   domain.RoleSet{domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleCashier, domain.RoleTechnicianCashier},
		TicketVoidRoles: domain.RoleSet{domain.RoleSuperAdmin, domain.RoleAdmin},
	}
}

type Options struct {
	Cache        cache.DashboardCache
	Policy       *Policy
	Logger       *logging.Logger
	Location     *time.Location
	DashboardTTL time.Duration
	Now          func() time.Time
}

type Service struct {
	repo         store.Repository
	cache        cache.DashboardCache
	policy       Policy
	logger       *logging.Logger
	log          *logrus.Entry
	loc          *time.Location
	dashboardTTL time.Duration
	now          func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopDashboardCache{}
	}
	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("info", "text", "")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:         repo,
		cache:        opts.Cache,
		policy:       policy,
		logger:       opts.Logger,
		log:          opts.Logger.Component("service"),
		loc:          opts.Location,
		dashboardTTL: opts.DashboardTTL,
		now:          opts.Now,
	}
}

// clock returns the current instant in the business timezone, so document
// years and report days follow local time.
func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func currentActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == 0 || !actor.Role.Valid() {
		return domain.Actor{}, store.ErrUnauthenticated
	}
	return actor, nil
}

// authorize resolves the principal and its scope and checks that it holds at
// least one of perms. With no perms any authenticated principal passes.
func authorize(ctx context.Context, perms ...domain.Permission) (domain.Actor, scope.Scope, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return domain.Actor{}, nil, err
	}
	if len(perms) == 0 {
		return actor, scope.Resolve(actor), nil
	}
	for _, p := range perms {
		if actor.Role.Can(p) {
			return actor, scope.Resolve(actor), nil
		}
	}
	return domain.Actor{}, nil, fmt.Errorf("%w: role %s lacks %s", store.ErrForbidden, actor.Role, perms[0])
}

func (s *Service) logAudit(ctx context.Context, branchID int64, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BranchID:   branchID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + strconv.FormatInt(entityID, 10),
		}).WithError(err).Warn("failed to write audit log")
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	_, sc, err := authorize(ctx, domain.PermViewReports)
	if err != nil {
		return nil, err
	}
	filter.BranchID = sc.ReadFilter(filter.BranchID)
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListAuditLogs(ctx, filter)
}

// requireActiveBranch checks that a branch being written to exists and is active.
func (s *Service) requireActiveBranch(ctx context.Context, branchID int64) error {
	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Invalid("branch %d does not exist", branchID)
		}
		return err
	}
	if branch.Status != domain.StatusActive {
		return store.Invalid("branch %d is inactive", branchID)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}
