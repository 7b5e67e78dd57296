package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openstats/data-api/internal/platform/config"
	"github.com/openstats/data-api/internal/platform/requestctx"
	"github.com/openstats/data-api/internal/repositories"
	"github.com/openstats/data-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Mappings services.MappingService
	System   services.SystemService
	Audit    services.AuditLogService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises optional container collaborators.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	events services.VersionEventPublisher
	logger *zap.Logger
	build  services.BuildInfo
}

// WithEventPublisher wires the publisher used to notify the release workflow.
// Without one, status changes stay local and nothing is emitted.
func WithEventPublisher(pub services.VersionEventPublisher) ContainerOption {
	return func(o *containerOptions) {
		o.events = pub
	}
}

// WithLogger sets the fallback logger for service-level diagnostics.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithBuildInfo attaches build metadata surfaced through health endpoints.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore-backed
// repositories, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, options containerOptions) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
			Logger:     zapAuditLogger{logger: options.logger},
			HashSalt:   cfg.Security.AuditHashSalt,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	if mappingRepo := reg.Mappings(); mappingRepo != nil {
		mappingSvc, err := services.NewMappingService(services.MappingServiceDeps{
			Repository: mappingRepo,
			Audit:      svc.Audit,
			Events:     options.events,
			Clock:      time.Now,
			Logger:     contextLogger(options.logger),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build mapping service: %w", err)
		}
		svc.Mappings = mappingSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := options.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = time.Now().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// contextLogger prefers the request-scoped logger and falls back to the
// container-level one so background work still surfaces diagnostics.
func contextLogger(fallback *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, msg string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == nil || logger == requestctx.NoopLogger() {
			logger = fallback
		}
		if logger == nil {
			return
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(msg, zapFields...)
	}
}

type zapAuditLogger struct {
	logger *zap.Logger
}

func (l zapAuditLogger) Warnf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(fmt.Sprintf(format, args...))
}
