package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/url-shortener/internal/audit"
	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/credential"
	"github.com/serroba/url-shortener/internal/handlers"
	"github.com/serroba/url-shortener/internal/health"
	"github.com/serroba/url-shortener/internal/messaging"
	"github.com/serroba/url-shortener/internal/metrics"
	"github.com/serroba/url-shortener/internal/middleware"
	"github.com/serroba/url-shortener/internal/shortener"
	"github.com/serroba/url-shortener/internal/store"
	"github.com/serroba/url-shortener/internal/token"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const connectTimeout = 10 * time.Second

// Redis owns the shared Redis client.
type Redis struct {
	Client redis.UniversalClient
}

// Shutdown implements do.Shutdownable.
func (r *Redis) Shutdown() error {
	return r.Client.Close()
}

// Postgres owns the connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// Shutdown implements do.Shutdownable.
func (p *Postgres) Shutdown() error {
	p.Pool.Close()

	return nil
}

// NewLogger builds a zap logger. format is "json" or "console".
func NewLogger(format, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config

	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		return NewLogger(opts.LogFormat, opts.LogLevel)
	})
}

func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Redis, error) {
		opts := do.MustInvoke[*Options](i)

		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.RedisAddr}})

		return &Redis{Client: client}, nil
	})
}

// PostgresPackage connects the pool and applies pending migrations.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Postgres, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()

			return nil, err
		}

		logger.Info("postgres ready")

		return &Postgres{Pool: pool}, nil
	})
}

// RepositoryPackage provides the persistence gateways: PostgreSQL for both
// aggregates, with code lookups cached in Redis.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (shortener.Repository, error) {
		opts := do.MustInvoke[*Options](i)
		pg := do.MustInvoke[*Postgres](i)
		rdb := do.MustInvoke[*Redis](i)

		d, err := opts.ParseDurations()
		if err != nil {
			return nil, err
		}

		return store.NewRedisCacheRepository(store.NewPostgresStore(pg.Pool), rdb.Client, d.Cache), nil
	})

	do.Provide(i, func(i *do.Injector) (auth.Repository, error) {
		pg := do.MustInvoke[*Postgres](i)

		return store.NewPostgresAuthStore(pg.Pool), nil
	})
}

// NewHasher builds the configured credential hasher.
func NewHasher(opts *Options) (credential.Hasher, error) {
	switch opts.PasswordHasher {
	case HasherArgon2ID:
		return credential.NewArgon2Hasher(credential.DefaultArgon2Params)
	case HasherBcrypt:
		return credential.NewBcryptHasher(opts.BcryptCost)
	default:
		return nil, fmt.Errorf("unknown password hasher %q", opts.PasswordHasher)
	}
}

func AuthPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*token.HS256Issuer, error) {
		opts := do.MustInvoke[*Options](i)

		var tokenOpts []token.Option
		if opts.JWTKeyID != "" {
			tokenOpts = append(tokenOpts, token.WithKeyID(opts.JWTKeyID))
		}

		return token.NewHS256Issuer(opts.JWTSecret, opts.JWTIssuer, tokenOpts...)
	})

	do.Provide(i, func(i *do.Injector) (*auth.Service, error) {
		opts := do.MustInvoke[*Options](i)

		d, err := opts.ParseDurations()
		if err != nil {
			return nil, err
		}

		hasher, err := NewHasher(opts)
		if err != nil {
			return nil, err
		}

		return auth.NewService(
			do.MustInvoke[auth.Repository](i),
			hasher,
			do.MustInvoke[*token.HS256Issuer](i),
			auth.Config{
				AccessTTL:       d.AccessToken,
				RefreshTTL:      d.RefreshToken,
				RefreshStoreTTL: d.RefreshTokenStore,
			},
			do.MustInvoke[*zap.Logger](i),
		)
	})
}

func ShortenerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*shortener.Service, error) {
		opts := do.MustInvoke[*Options](i)

		generate, err := shortener.NewCodeGenerator(opts.CodeLength)
		if err != nil {
			return nil, err
		}

		return shortener.NewService(
			do.MustInvoke[shortener.Repository](i),
			generate,
			opts.BaseURL,
			do.MustInvoke[*zap.Logger](i),
			shortener.WithMaxAttempts(opts.CodeMaxAttempts),
		), nil
	})
}

// PublisherGroupPackage provides the Redis stream publisher and the typed
// audit publish function built on it.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		rdb := do.MustInvoke[*Redis](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     rdb.Client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.Event], error) {
		opts := do.MustInvoke[*Options](i)
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[audit.Event](group.Publisher(), opts.AuditStream), nil
	})
}

// ConsumerGroupPackage provides the audit consumer group for cmd/consumer.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		rdb := do.MustInvoke[*Redis](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        rdb.Client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: opts.AuditConsumerGroup,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(audit.NewConsumer(subscriber, opts.AuditStream, audit.NewLogSink(logger), logger))

		return group, nil
	})
}

// HTTPPackage provides the router and the huma API with every route
// registered. Invoking huma.API is what registers the routes.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		router := chi.NewMux()
		router.Use(chimw.RequestID, chimw.Recoverer)

		return router, nil
	})

	do.Provide(i, func(_ *do.Injector) (*metrics.HTTP, error) {
		return metrics.NewHTTP(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		issuer := do.MustInvoke[*token.HS256Issuer](i)
		httpMetrics := do.MustInvoke[*metrics.HTTP](i)

		config := huma.DefaultConfig("URL Shortener", "1.0.0")
		config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			handlers.SecurityScheme: {
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		}

		api := humachi.New(router, config)
		api.UseMiddleware(
			httpMetrics.Middleware,
			middleware.RequestMeta(api),
			middleware.Authenticate(api, issuer, logger),
		)

		handlers.RegisterRoutes(api,
			handlers.NewAuthHandler(
				do.MustInvoke[*auth.Service](i),
				do.MustInvoke[messaging.Publish[audit.Event]](i),
				logger,
			),
			handlers.NewURLHandler(do.MustInvoke[*shortener.Service](i), logger),
		)

		health.RegisterRoutes(api, health.NewHandler(
			health.NewRedisChecker(do.MustInvoke[*Redis](i).Client),
			do.MustInvoke[*Postgres](i).Pool,
		))

		router.Handle("/metrics", httpMetrics.Handler())

		return api, nil
	})
}
