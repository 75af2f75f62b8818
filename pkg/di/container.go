package di

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"research-chat/backend/ai"
	chatservice "research-chat/backend/chat/service"
	"research-chat/backend/conversation/models"
	"research-chat/backend/conversation/repository"
	"research-chat/backend/conversation/service"
	"research-chat/backend/conversation/sink"
	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/health"
	"research-chat/backend/pkg/jwt"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/redcap"
	"research-chat/backend/pkg/resilience"
	"research-chat/backend/pkg/secrets"
	redisclient "research-chat/backend/shared/redis"
	"research-chat/backend/shared/observability"
	"research-chat/backend/session"

	"gorm.io/gorm"
)

// ServiceName identifies the backend in telemetry
const ServiceName = "research-chat-backend"

// Container holds all the dependencies for the application
type Container struct {
	Config             *config.Config
	Logger             *logger.Logger
	DB                 *gorm.DB
	Redcap             *sink.RedcapSink
	ConversationLogger *service.ConversationLogger
	Sessions           session.Store
	LLM                chatservice.Completer
	ChatService        *chatservice.ChatService
	JWTService         *jwt.Service
	Health             *health.Checker
	Telemetry          *observability.Telemetry
	Secrets            secrets.Manager

	closers []func(ctx context.Context) error
}

// New builds every component from cfg. Secrets missing from cfg are looked
// up through Vault or the environment before anything connects.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	manager, err := newSecrets(cfg, log)
	if err != nil {
		return nil, err
	}
	c.Secrets = manager
	resolveSecrets(ctx, cfg, manager)

	c.Telemetry, err = observability.Setup(ServiceName, cfg.Observability)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.Telemetry.Shutdown)

	c.Health = health.NewChecker(log, 30*time.Second)

	bindings, err := c.buildSinks(ctx, cfg.Remote.Enabled)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	metrics, err := service.NewMetrics(c.Telemetry.Meter("research-chat/conversation"))
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	c.ConversationLogger = service.NewConversationLogger(bindings, log, service.Options{
		Roles:     RolePolicy(cfg.Roles),
		Metrics:   metrics,
		Tracer:    c.Telemetry.Tracer("research-chat/conversation"),
		Protected: ProtectedPaths(cfg.Local),
	})

	if err := c.buildSessions(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}

	llm, err := ai.NewClient(cfg.LLM, log)
	switch {
	case stderrors.Is(err, ai.ErrNotConfigured):
		log.Warn("no LLM api key configured, /chat will answer 502", "provider", cfg.LLM.Provider)
		c.LLM = ai.Unavailable{}
	case err != nil:
		c.Close(ctx)
		return nil, err
	default:
		c.LLM = llm
	}
	c.ChatService = chatservice.NewChatService(c.Sessions, c.LLM, c.ConversationLogger, cfg.LLM.HistoryLimit, log)

	c.JWTService, err = jwt.NewService(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("create token service: %w", err)
	}
	if cfg.Admin.JWTSecret == "" {
		log.Warn("admin.jwt_secret not set, admin tokens will not survive a restart")
	}

	return c, nil
}

// NewLogOnly builds just the local sink and the conversation logger, for
// offline tools
func NewLogOnly(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log, Health: health.NewChecker(log, 0)}
	bindings, err := c.buildSinks(ctx, false)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.ConversationLogger = service.NewConversationLogger(bindings, log, service.Options{
		Roles:     RolePolicy(cfg.Roles),
		Protected: ProtectedPaths(cfg.Local),
	})
	return c, nil
}

func (c *Container) buildSinks(ctx context.Context, withRemote bool) ([]sink.Binding, error) {
	cfg := c.Config
	var bindings []sink.Binding

	if cfg.Local.Enabled {
		db, err := OpenLocal(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.DB = db
		c.closers = append(c.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})

		repo, err := repository.NewGormMessageRepository(db)
		if err != nil {
			return nil, err
		}
		local := sink.NewLocalSink(repo)
		bindings = append(bindings, sink.Binding{Sink: local, Required: cfg.Local.Required})
		c.Health.RegisterCheck("local_sink", cfg.Local.Required, health.PingCheck("Database reachable", local.Ping))
	}

	if withRemote {
		client := redcap.NewClient(cfg.Remote.Endpoint, cfg.Remote.Credentials, cfg.Remote.Timeout)
		breakerCfg := resilience.DefaultCircuitBreakerConfig("redcap")
		breakerCfg.Timeout = cfg.Remote.Timeout
		remote := sink.NewRedcapSink(client, cfg.Remote, resilience.NewCircuitBreaker(breakerCfg, c.Logger), c.Logger)

		if cfg.Remote.CheckFields {
			missing, err := remote.VerifyFields(ctx)
			switch {
			case err != nil:
				c.Logger.Warn("could not read REDCap data dictionary", "error", err.Error())
			case len(missing) > 0 && cfg.Remote.Required:
				return nil, fmt.Errorf("REDCap project is missing fields: %s", strings.Join(missing, ", "))
			case len(missing) > 0:
				c.Logger.Warn("REDCap project is missing fields", "fields", missing)
			}
		}

		c.Redcap = remote
		bindings = append(bindings, sink.Binding{Sink: remote, Required: cfg.Remote.Required})
		c.Health.RegisterCheck("remote_sink", cfg.Remote.Required, health.PingCheck("REDCap reachable", remote.Ping))
	}

	if len(bindings) == 0 {
		c.Logger.Warn("no conversation sinks enabled, turns will not be persisted")
	}
	return bindings, nil
}

func (c *Container) buildSessions(ctx context.Context) error {
	cfg := c.Config.Session
	switch cfg.Store {
	case "redis":
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		c.Sessions = session.NewRedisStore(client, cfg.Redis.Prefix, nil)
	default:
		c.Sessions = session.NewMemoryStore(nil)
	}
	c.closers = append(c.closers, func(context.Context) error { return c.Sessions.Close() })
	c.Health.RegisterCheck("session_store", true, health.PingCheck("Session store reachable", c.Sessions.Ping))
	return nil
}

// OpenLocal opens the local database and applies pending migrations
func OpenLocal(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := config.NewDB(cfg.Local, cfg.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("open local sink: %w", err)
	}
	if err := repository.Migrate(ctx, db, cfg.Local.Driver); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("migrate local sink: %w", err)
	}
	return db, nil
}

// ProtectedPaths lists the local database files an export must not replace
func ProtectedPaths(cfg config.LocalSinkConfig) []string {
	if cfg.Driver != "sqlite" || cfg.Path == "" {
		return nil
	}
	return []string{cfg.Path, cfg.Path + "-wal", cfg.Path + "-shm"}
}

// RolePolicy converts the roles section into the policy applied by the logger
func RolePolicy(cfg config.RolesConfig) models.RolePolicy {
	policy := models.RolePolicy{Normalize: cfg.Policy == config.RolePolicyNormalize}
	if len(cfg.Aliases) > 0 {
		policy.Aliases = make(map[string]models.Role, len(cfg.Aliases))
		for label, role := range cfg.Aliases {
			policy.Aliases[strings.ToLower(label)] = models.Role(strings.ToLower(role))
		}
	}
	return policy
}

func newSecrets(cfg *config.Config, log *logger.Logger) (secrets.Manager, error) {
	if !cfg.Vault.Enabled {
		return secrets.EnvManager{}, nil
	}
	manager, err := secrets.NewVaultManager(cfg.Vault, log)
	if err != nil {
		return nil, fmt.Errorf("create vault manager: %w", err)
	}
	return manager, nil
}

func resolveSecrets(ctx context.Context, cfg *config.Config, m secrets.Manager) {
	cfg.Remote.Credentials = secrets.Resolve(ctx, m, "redcap_api_token", cfg.Remote.Credentials)
	cfg.LLM.APIKey = secrets.Resolve(ctx, m, "llm_api_key", cfg.LLM.APIKey)
	cfg.Admin.JWTSecret = secrets.Resolve(ctx, m, "admin_jwt_secret", cfg.Admin.JWTSecret)
	cfg.Admin.PasswordHash = secrets.Resolve(ctx, m, "admin_password_hash", cfg.Admin.PasswordHash)
}

// Close releases resources in reverse creation order
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}
	c.closers = nil
	return stderrors.Join(errs...)
}
