package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/galeria/internal/api"
	"github.com/onnwee/galeria/internal/auth"
	"github.com/onnwee/galeria/internal/blob"
	"github.com/onnwee/galeria/internal/classify"
	"github.com/onnwee/galeria/internal/config"
	"github.com/onnwee/galeria/internal/events"
	"github.com/onnwee/galeria/internal/exifmeta"
	"github.com/onnwee/galeria/internal/health"
	"github.com/onnwee/galeria/internal/idempotency"
	"github.com/onnwee/galeria/internal/image"
	"github.com/onnwee/galeria/internal/middleware"
	"github.com/onnwee/galeria/internal/store"
	"github.com/onnwee/galeria/internal/tracing"
	"github.com/onnwee/galeria/internal/upload"
)

const serviceName = "galeria-api"

// application holds the wired HTTP handler and the resources to release on
// shutdown, in acquisition order.
type application struct {
	handler http.Handler
	closers []closer
	logger  *slog.Logger
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (a *application) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse acquisition order.
func (a *application) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Error("failed to close resource", "resource", c.name, "error", err)
		}
	}
	a.closers = nil
}

// newApp connects the configured backends. Empty DATABASE_URL, REDIS_URL,
// KAFKA_BROKERS or S3 settings select the in-process implementations.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{logger: logger}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: !cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.onClose("tracing", provider.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}
	uploadMetrics := upload.NewMetrics()
	if err := uploadMetrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register upload metrics: %w", err)
	}

	checkers := map[string]api.HealthChecker{}

	var photos store.Store
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.onClose("database", func(context.Context) error { return db.Close() })
		photos = store.NewPostgres(db, logger)
		checkers["database"] = health.NewDBChecker(db)
	} else {
		logger.Warn("DATABASE_URL not set, photo records are kept in memory")
		photos = store.NewMemory()
	}

	var blobs blob.Store
	var blobHandler http.Handler
	if cfg.S3Enabled() {
		s3Store, err := blob.NewS3(blob.S3Config{
			BucketName:      cfg.S3BucketName,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3: %w", err)
		}
		blobs = s3Store
	} else {
		logger.Warn("S3 not configured, files are kept in memory")
		mem := blob.NewMemory("http://localhost:" + strconv.Itoa(cfg.Port) + "/blobs")
		blobs = mem
		blobHandler = mem.Handler("/blobs/")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafka(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka: %w", err)
		}
		app.onClose("kafka", func(context.Context) error { return kafka.Close() })
		publisher = kafka
		checkers["kafka"] = health.NewKafkaChecker(cfg.KafkaBrokers)
	}

	uploadLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.UploadRateLimit,
		WindowDuration:    time.Minute,
	}
	var limits middleware.RateLimitStore
	var keys idempotency.Repository
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		app.onClose("redis", func(context.Context) error { return client.Close() })
		limits = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics).WithLogger(logger)
		keys = idempotency.NewRedisRepository(client, idempotency.DefaultExpiry)
		checkers["redis"] = health.NewRedisChecker(client)
	} else {
		mem := middleware.NewInMemoryRateLimitStore()
		stopCleanup := startCleanup(mem, 5*time.Minute)
		app.onClose("rate limit cleanup", func(context.Context) error { stopCleanup(); return nil })
		limits = mem

		memKeys := idempotency.NewInMemoryRepository()
		cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
		go idempotency.RunPeriodicCleanup(cleanupCtx, memKeys, time.Hour, idempotency.DefaultExpiry)
		app.onClose("idempotency cleanup", func(context.Context) error { cancelCleanup(); return nil })
		keys = memKeys
	}

	extractor := exifmeta.NewExtractor(&http.Client{Timeout: 10 * time.Second})
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	committer, err := upload.NewCommitter(upload.Config{
		Store:               photos,
		Blobs:               blobs,
		Extractor:           extractor,
		Inspector:           image.NewInspector(),
		Publisher:           publisher,
		Metrics:             uploadMetrics,
		Logger:              logger,
		MaxSizeMB:           cfg.MaxUploadSizeMB,
		Compensate:          cfg.UploadCompensate,
		DescriptionRequired: cfg.DescriptionRequired,
	})
	if err != nil {
		return nil, err
	}
	manager, err := upload.NewManager(upload.ManagerConfig{
		Store:     photos,
		Blobs:     blobs,
		Captures:  extractor,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	views, err := classify.NewService(classify.ServiceConfig{
		Store:    photos,
		URLs:     blobs,
		Captures: extractor,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	mux := api.NewRouter(api.RouterConfig{
		Photos:            api.NewPhotoHandlers(committer, manager, views, cfg.MaxUploadSizeMB),
		Views:             api.NewViewHandlers(views),
		Health:            api.NewHealthHandlers(api.HealthHandlersConfig{Checkers: checkers}),
		Auth:              jwtService,
		UploadLimiter:     middleware.RateLimiter(limits, uploadLimit, middleware.UserKeyFunc(), httpMetrics),
		UploadIdempotency: middleware.Idempotency(keys),
		Metrics:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Blobs:             blobHandler,
	})

	// RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> RateLimiter -> mux
	var handler http.Handler = mux
	handler = middleware.RateLimiter(limits, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	app.handler = middleware.RequestID(handler)

	return app, nil
}

// startCleanup evicts expired in-memory rate limit buckets until stopped.
func startCleanup(s *middleware.InMemoryRateLimitStore, interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
