package services

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/app/config"
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/infrastructure/auth/jwt"
	"github.com/archivus/docflow/internal/infrastructure/auth/supabase"
	"github.com/archivus/docflow/internal/infrastructure/cache"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/events"
	"github.com/archivus/docflow/internal/infrastructure/repositories/postgresql"
	"github.com/archivus/docflow/internal/reliability/retry"
	"github.com/archivus/docflow/pkg/logger"
)

// ServiceManager manages all application services
type ServiceManager struct {
	Config *config.Config

	// Infrastructure
	DB             *database.DB
	Repositories   *postgresql.Repositories
	CacheService   services.CacheService
	Emitter        *events.QueueEmitter
	TokenValidator services.TokenValidator

	// Workflow engine
	Delegation    *services.DelegationResolver
	Permissions   *services.PermissionEvaluator
	StateMachine  *services.DocumentStateMachine
	Documents     *services.DocumentService
	Signatures    *services.SignatureWorkflow
	Voting        *services.VotingWorkflow
	Notifications *services.NotificationService
}

// NewServiceManager creates a new service manager
func NewServiceManager(cfg *config.Config, db *database.DB, log *logger.Logger) (*ServiceManager, error) {
	repos := postgresql.NewRepositories(db)

	cacheService, err := cache.CreateCacheService(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache service: %w", err)
	}

	validator, err := newTokenValidator(cfg.Auth)
	if err != nil {
		_ = cacheService.Close()
		return nil, fmt.Errorf("failed to initialize token validator: %w", err)
	}

	retryConfig := retry.DefaultConfig()
	if cfg.Workflow.CASMaxAttempts > 0 {
		retryConfig.MaxAttempts = cfg.Workflow.CASMaxAttempts
	}
	if cfg.Workflow.CASInitialBackoff > 0 {
		retryConfig.InitialBackoff = cfg.Workflow.CASInitialBackoff
	}
	if cfg.Workflow.CASMaxBackoff > 0 {
		retryConfig.MaxBackoff = cfg.Workflow.CASMaxBackoff
	}

	emitter := events.NewQueueEmitter(cacheService, log)
	clock := services.SystemClock

	delegation := services.NewDelegationResolver(repos.SubstitutionRepo, repos.UserRepo, repos.AuditRepo, clock, log)
	permissions := services.NewPermissionEvaluator(repos.GrantRepo, delegation)
	machine := services.NewDocumentStateMachine(repos.VersionRepo, repos.AuditRepo, retryConfig, log)

	sm := &ServiceManager{
		Config:         cfg,
		DB:             db,
		Repositories:   repos,
		CacheService:   cacheService,
		Emitter:        emitter,
		TokenValidator: validator,
		Delegation:     delegation,
		Permissions:    permissions,
		StateMachine:   machine,
		Documents: services.NewDocumentService(
			repos.DocumentRepo, repos.DocumentTypeRepo, repos.VersionRepo, repos.GrantRepo,
			repos.UserRepo, repos.AuditRepo, permissions, machine, log,
		),
		Signatures: services.NewSignatureWorkflow(
			repos.VersionRepo, repos.SignatureRepo, repos.UserRepo, repos.GrantRepo, repos.AuditRepo,
			permissions, delegation, machine, emitter, retryConfig, clock, log,
		),
		Voting: services.NewVotingWorkflow(
			repos.VersionRepo, repos.VotingRepo, repos.VoteRepo, repos.UserRepo, repos.GrantRepo, repos.AuditRepo,
			permissions, delegation, machine, emitter, retryConfig, clock,
			cfg.Workflow.DefaultVotingDeadlineDays, log,
		),
		Notifications: services.NewNotificationService(repos.NotificationRepo),
	}

	return sm, nil
}

// newTokenValidator picks the bearer token validator for the configured provider.
func newTokenValidator(cfg config.AuthConfig) (services.TokenValidator, error) {
	switch cfg.Provider {
	case config.AuthProviderSupabase:
		return supabase.NewAuthService(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseAPIKey})
	case config.AuthProviderJWT, "":
		return jwt.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

// NewDrainer builds the worker that turns queued workflow events into
// notifications.
func (sm *ServiceManager) NewDrainer(log *logger.Logger) *events.Drainer {
	return events.NewDrainer(sm.CacheService, sm.Repositories.NotificationRepo, sm.Config.Worker.BatchSize, log)
}

// HealthCheck pings the database and the event queue.
func (sm *ServiceManager) HealthCheck(ctx context.Context) error {
	if err := sm.Repositories.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	if err := sm.CacheService.Ping(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

// Close gracefully shuts down all services
func (sm *ServiceManager) Close() error {
	if err := sm.CacheService.Close(); err != nil {
		return fmt.Errorf("failed to close cache service: %w", err)
	}

	if err := sm.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
