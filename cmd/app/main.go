package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/openshelf/openshelf/internal/api"
	"github.com/openshelf/openshelf/internal/backfill"
	"github.com/openshelf/openshelf/internal/books"
	"github.com/openshelf/openshelf/internal/cache"
	"github.com/openshelf/openshelf/internal/db"
	"github.com/openshelf/openshelf/internal/notifications"
	"github.com/openshelf/openshelf/internal/observability"
	"github.com/openshelf/openshelf/internal/provider"
	"github.com/openshelf/openshelf/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const version = "0.3.0"

// Config holds the application configuration loaded from environment variables
type Config struct {
	Port                 string  // HTTP port to listen on
	Env                  string  // Environment (development/production)
	SentryDSN            string  // Sentry DSN for error tracking
	LogLevel             string  // Log level (debug, info, warn, error)
	ObservabilityEnabled bool    // Toggle OpenTelemetry + Prometheus exporters
	MetricsAddr          string  // Address for Prometheus metrics endpoint (":9464" style)
	OTLPEndpoint         string  // OTLP HTTP endpoint for trace export
	OTLPHeaders          string  // Comma separated headers for OTLP exporter
	OTLPInsecure         bool    // Disable TLS verification for OTLP exporter
	FetchRate            float64 // Provider fetches allowed per second
	FetchBurst           int     // Token bucket burst for provider fetches
	MaxInFlight          int     // Concurrent orchestration ceiling
	BatchSize            int     // Tasks pulled per scheduler tick
	TickInterval         time.Duration
	AdminJWTSecret       string // HS256 secret for admin endpoints
	SlackWebhookURL      string // Incoming webhook for exhausted-task alerts
	SupabaseURL          string // Supabase project URL for cover mirroring
	SupabaseServiceKey   string
	GoogleBooksAPIKey    string
	AmazonAffiliateTag   string
}

func main() {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := &Config{
		Port:                 getEnvWithDefault("PORT", "8080"),
		Env:                  getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		ObservabilityEnabled: getEnvWithDefault("OBSERVABILITY_ENABLED", "true") == "true",
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9464"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:          os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		OTLPInsecure:         getEnvWithDefault("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
		FetchRate:            getEnvFloat("BACKFILL_FETCH_RATE", 5),
		FetchBurst:           getEnvInt("BACKFILL_FETCH_BURST", 5),
		MaxInFlight:          getEnvInt("BACKFILL_MAX_IN_FLIGHT", 4),
		BatchSize:            getEnvInt("BACKFILL_BATCH_SIZE", backfill.DefaultBatchSize),
		TickInterval:         time.Duration(getEnvInt("BACKFILL_TICK_SECONDS", 5)) * time.Second,
		AdminJWTSecret:       os.Getenv("ADMIN_JWT_SECRET"),
		SlackWebhookURL:      os.Getenv("SLACK_WEBHOOK_URL"),
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:   os.Getenv("SUPABASE_SERVICE_KEY"),
		GoogleBooksAPIKey:    os.Getenv("GOOGLE_BOOKS_API_KEY"),
		AmazonAffiliateTag:   os.Getenv("AMAZON_AFFILIATE_TAG"),
	}

	setupLogging(config)

	// Initialise Sentry for error tracking and performance monitoring
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Env,
			TracesSampleRate: func() float64 {
				if config.Env == "production" {
					return 0.1 // 10% sampling in production
				}
				return 1.0 // 100% sampling in development
			}(),
			AttachStacktrace: true,
			Debug:            config.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", config.Env).Msg("Sentry initialised successfully")
			// Ensure Sentry flushes before application exits
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	var (
		obsProviders *observability.Providers
		metricsSrv   *http.Server
		err          error
	)

	if config.ObservabilityEnabled {
		obsProviders, err = observability.Init(context.Background(), observability.Config{
			Enabled:        true,
			ServiceName:    "openshelf",
			Environment:    config.Env,
			OTLPEndpoint:   strings.TrimSpace(config.OTLPEndpoint),
			OTLPHeaders:    parseOTLPHeaders(config.OTLPHeaders),
			OTLPInsecure:   config.OTLPInsecure,
			MetricsAddress: config.MetricsAddr,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else if obsProviders != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()

			if obsProviders.MetricsHandler != nil && config.MetricsAddr != "" {
				metricsSrv = &http.Server{
					Addr:              config.MetricsAddr,
					Handler:           obsProviders.MetricsHandler,
					ReadHeaderTimeout: 5 * time.Second,
				}

				go func() {
					log.Info().Str("addr", config.MetricsAddr).Msg("Metrics server listening")
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						sentry.CaptureException(err)
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()

				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
					}
				}()
			}
		}
	}

	// Connect to PostgreSQL
	pgDB, err := db.InitFromEnvWithRetry(context.Background())
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL database")
	}
	defer pgDB.Close()

	log.Info().Msg("Connected to PostgreSQL database")

	// Provider registry: each source pairs a fetcher with the shared mapper
	providerConfig := provider.DefaultConfig()
	registry := backfill.NewRegistry()
	registry.Register(provider.SourceOpenLibrary, backfill.Provider{
		Fetcher: provider.NewOpenLibraryClient(providerConfig),
		Map:     provider.MapDocument,
	})
	registry.Register(provider.SourceGoogleBooks, backfill.Provider{
		Fetcher: provider.NewGoogleBooksClient(providerConfig, config.GoogleBooksAPIKey),
		Map:     provider.MapDocument,
	})
	log.Info().Strs("sources", registry.Sources()).Msg("Registered metadata providers")

	// Cover mirroring is optional; without Supabase credentials books keep
	// their provider-hosted cover URLs
	var covers *storage.Client
	if config.SupabaseURL != "" && config.SupabaseServiceKey != "" {
		covers = storage.New(config.SupabaseURL, config.SupabaseServiceKey)
		log.Info().Msg("Cover mirroring enabled")
	}

	bookService := books.NewService(pgDB.GetDB(), covers, config.AmazonAffiliateTag)

	queue := db.NewTaskQueue(pgDB)
	gate := backfill.NewCapacityGate(config.FetchRate, config.FetchBurst, config.MaxInFlight)

	coordinatorOpts := []backfill.CoordinatorOption{
		backfill.WithBatchSize(config.BatchSize),
	}
	if config.SlackWebhookURL != "" {
		coordinatorOpts = append(coordinatorOpts, backfill.WithAlerter(notifications.NewSlackAlerter(config.SlackWebhookURL)))
	}

	coordinator := backfill.NewCoordinator(queue, registry, bookService, gate, coordinatorOpts...)

	scheduler := backfill.NewScheduler(coordinator,
		backfill.WithTickInterval(config.TickInterval),
		backfill.WithTaskListener(pgDB.GetConfig().ConnectionString()),
	)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	recent := cache.NewRecentlyViewed(10)

	// Create a rate limiter
	limiter := newRateLimiter()

	apiHandler := api.NewHandler(coordinator, bookService, recent, pgDB, api.AuthConfig{
		Secret: config.AdminJWTSecret,
	}, version)

	mux := http.NewServeMux()
	apiHandler.SetupRoutes(mux)

	// Create middleware stack with rate limiting
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if !limiter.getLimiter(ip).Allow() {
			api.WriteError(w, r, http.StatusTooManyRequests, api.ErrCodeRateLimit, "Too many requests")
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Add middleware in reverse order (outermost first)
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = observability.WrapHandler(handler, obsProviders)

	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: handler,
	}

	// Channel to listen for termination signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when the server has shut down
	done := make(chan struct{})

	go func() {
		<-stop
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop accepting new requests
		if err := server.Shutdown(ctx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Str("port", config.Port).Msg("Starting server")

	baseURL := fmt.Sprintf("http://localhost:%s", config.Port)
	log.Info().Str("health", baseURL+"/health").Msg("Health check")
	log.Info().Str("stats", baseURL+"/v1/backfill/stats").Msg("Queue stats")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Server error")
	}

	<-done // Wait for the shutdown process to complete
	log.Info().Msg("Server stopped")
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
		return defaultValue
	}

	return result
}

// getEnvFloat retrieves an environment variable as a float or returns a default value if not set or invalid
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Float64("default", defaultValue).
			Msg("Invalid float in environment variable, using default")
		return defaultValue
	}

	return result
}

func parseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}

		headers[key] = value
	}

	return headers
}

// setupLogging configures the logging system
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use console writer in development
	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		// In production, use a JSON format that works well with Fly.io logs
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", "openshelf").
			Logger()
	}
}

// RateLimiter represents a rate limiting system based on client IP addresses
type RateLimiter struct {
	limits   map[string]*IPRateLimiter
	mu       sync.Mutex
	rate     rate.Limit
	capacity int
}

// IPRateLimiter wraps a token bucket rate limiter specific to an IP address
type IPRateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter creates a new rate limiter with default settings
func newRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits:   make(map[string]*IPRateLimiter),
		rate:     rate.Limit(20), // 20 requests per second per client
		capacity: 10,             // 10 burst capacity
	}
}

// getLimiter returns the rate limiter for a specific IP address
func (rl *RateLimiter) getLimiter(ip string) *IPRateLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limits[ip]
	if !exists {
		limiter = &IPRateLimiter{
			limiter: rate.NewLimiter(rl.rate, rl.capacity),
		}
		rl.limits[ip] = limiter
	}

	return limiter
}

// Allow checks if a request from this IP should be allowed
func (ipl *IPRateLimiter) Allow() bool {
	return ipl.limiter.Allow()
}

// getClientIP extracts the client's IP address from a request
func getClientIP(r *http.Request) string {
	// Check for X-Forwarded-For header first (for clients behind proxies)
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// X-Forwarded-For might contain multiple IPs, take the first one
		ips := strings.Split(ip, ",")
		ip = strings.TrimSpace(ips[0])
		return ip
	}

	// If no X-Forwarded-For, use RemoteAddr
	ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	return ip
}
