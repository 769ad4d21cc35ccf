package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/logistics"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/sqlite"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/stock"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/httpx"
	sagasqlite "github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/auth"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/httpclient"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
		})
		if err != nil {
			slog.Error("failed to initialise tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("tracer shutdown error", "error", err)
			}
		}()
	} else {
		otel.SetTextMapPropagator(telemetry.Propagator())
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sagaLog, err := sagasqlite.New(db)
	if err != nil {
		slog.Error("failed to prepare saga log", "error", err)
		os.Exit(1)
	}

	locker, idempotency := coordination(ctx, cfg)
	stockClient, logisticsClient := backends(ctx, cfg)

	publisher := events.NewNoopPublisher()
	if cfg.KafkaBrokers != "" {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
		slog.Info("publishing order events to kafka", "brokers", cfg.KafkaBrokers)
	}
	defer publisher.Close()

	m := metrics.New(strings.ReplaceAll(cfg.ServiceName, "-", "_"))
	carts := sqlite.NewCartRepository(db)

	orders := app.NewOrderService(app.Deps{
		Orders:      sqlite.NewOrderRepository(db),
		Carts:       carts,
		Stock:       stockClient,
		Logistics:   logisticsClient,
		SagaLog:     sagaLog,
		Locker:      locker,
		Idempotency: idempotency,
		Publisher:   publisher,
		Metrics:     m,
	}, app.Settings{
		DefaultTransportType: cfg.DefaultTransportType,
		CompensationTimeout:  cfg.CompensationTimeout,
		LockTTL:              cfg.OrderLockTTL,
		IdempotencyTTL:       cfg.IdempotencyTTL,
	})

	handler := httpx.NewHandler(orders, app.NewCartService(carts, stockClient), app.NewCatalogService(stockClient, logisticsClient))
	router := httpx.NewRouter(handler, m)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("checkout service running", "addr", srv.Addr, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
}

// coordination returns the order locker and idempotency store, backed by
// Redis when REDIS_ADDR is set.
func coordination(ctx context.Context, cfg *config.Config) (cache.Locker, cache.Cache) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryLocker(), cache.NewMemoryCache("checkout")
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("using redis for locks and idempotency", "addr", cfg.RedisAddr)
	return cache.NewRedisLocker(client, "checkout"), cache.NewRedisCache(client, "checkout")
}

func backends(ctx context.Context, cfg *config.Config) (ports.StockService, ports.LogisticsService) {
	if cfg.Backend != config.BackendHTTP {
		return stock.NewMemoryClient(), logistics.NewMemoryClient()
	}

	tokens := auth.NewResolver(nil)
	if cfg.ServiceCredentialsConfigured() {
		tokens = auth.NewResolver(auth.NewServiceTokenSource(ctx, auth.ServiceCredentials{
			TokenURL:     cfg.ServiceTokenURL,
			ClientID:     cfg.ServiceClientID,
			ClientSecret: cfg.ServiceClientSecret,
			Scopes:       strings.Fields(cfg.ServiceScope),
		}))
	}

	newClient := func(name, baseURL string) *httpclient.Client {
		return httpclient.New(baseURL,
			httpclient.WithName(name),
			httpclient.WithTimeout(cfg.HTTPClientTimeout),
			httpclient.WithMaxRetries(cfg.HTTPClientRetries),
			httpclient.WithTokenProvider(tokens.Token),
		)
	}
	return stock.NewHTTPClient(newClient("stock", cfg.StockBaseURL)),
		logistics.NewHTTPClient(newClient("logistics", cfg.LogisticsBaseURL))
}
