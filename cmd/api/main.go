package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openstats/data-api/internal/di"
	"github.com/openstats/data-api/internal/handlers"
	"github.com/openstats/data-api/internal/platform/config"
	pfirestore "github.com/openstats/data-api/internal/platform/firestore"
	"github.com/openstats/data-api/internal/platform/jobs"
	"github.com/openstats/data-api/internal/platform/observability"
	"github.com/openstats/data-api/internal/platform/secrets"
	"github.com/openstats/data-api/internal/repositories"
	firestoreRepo "github.com/openstats/data-api/internal/repositories/firestore"
	"github.com/openstats/data-api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var (
		eventPublisher *jobs.PubSubVersionEventPublisher
		pubsubClient   *pubsub.Client
		statusTopic    *pubsub.Topic
		finalizedTopic *pubsub.Topic
	)
	if cfg.Features.EnableEventPublishing {
		if cfg.PubSub.EmulatorHost != "" {
			if err := os.Setenv("PUBSUB_EMULATOR_HOST", cfg.PubSub.EmulatorHost); err != nil {
				logger.Fatal("failed to point pubsub client at emulator", zap.Error(err))
			}
		}
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		statusTopic = pubsubClient.Topic(cfg.PubSub.StatusTopic)
		finalizedTopic = pubsubClient.Topic(cfg.PubSub.FinalizedTopic)
		defer statusTopic.Stop()
		defer finalizedTopic.Stop()

		eventPublisher, err = jobs.NewPubSubVersionEventPublisher(statusTopic, finalizedTopic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	} else {
		logger.Info("event publishing disabled; status changes stay local")
	}

	healthRepo, err := newHealthRepository(firestoreClient, statusTopic)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.ContainerOption{
		di.WithLogger(logger.Named("services")),
		di.WithBuildInfo(buildInfo),
	}
	if eventPublisher != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(eventPublisher))
	}
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	mappingHandlers := handlers.NewMappingHandlers(
		handlers.WithMappingService(container.Services.Mappings),
		handlers.WithMappingLimits(cfg.Mapping.MaxUpdatesPerBatch, cfg.Mapping.MaxRequestBodyBytes),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAdminRoutes(mappingHandlers.RegisterAdminRoutes),
		handlers.WithAdminMiddlewares(handlers.NewRateLimiter(cfg.RateLimits.DefaultPerMinute)),
		handlers.WithInternalRoutes(mappingHandlers.RegisterInternalRoutes),
		handlers.WithInternalMiddlewares(handlers.InternalAuthMiddleware(cfg.Security.InternalAPIToken)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("data api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, statusTopic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if statusTopic != nil {
		topic := statusTopic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					if st, ok := status.FromError(err); ok && st.Code() == codes.Unimplemented {
						// Emulators without the admin surface still serve publishes.
						return nil
					}
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.PubSub.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{"Security.InternalAPIToken"}
	if env != nil && strings.TrimSpace(env["API_SECURITY_AUDIT_HASH_SALT"]) != "" {
		required = append(required, "Security.AuditHashSalt")
	}
	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
