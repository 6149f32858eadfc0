package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/adapter/fallback"
	"github.com/emobix/ocpi-node/internal/adapter/http/fiber/handlers"
	"github.com/emobix/ocpi-node/internal/adapter/http/fiber/middleware"
	"github.com/emobix/ocpi-node/internal/client"
	"github.com/emobix/ocpi-node/internal/commandlog"
	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/events"
	"github.com/emobix/ocpi-node/internal/observability/telemetry"
	"github.com/emobix/ocpi-node/internal/registry"
	"github.com/emobix/ocpi-node/internal/service/credentials"
	"github.com/emobix/ocpi-node/internal/service/versions"
	"github.com/emobix/ocpi-node/internal/store"
	"github.com/emobix/ocpi-node/pkg/config"
)

const serviceName = "ocpi-node"

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting OCPI node",
		zap.String("service", serviceName),
		zap.String("version", cfg.App.Version),
		zap.String("external_url", cfg.HTTP.ExternalURL),
	)

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(cfg.OpenTelemetry.ServiceName, cfg.OpenTelemetry.Jaeger.Endpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Open the command log
	clog, err := commandlog.NewFileLog(cfg.CommandLog.Directory, logger)
	if err != nil {
		logger.Fatal("Failed to open command log", zap.Error(err))
	}
	defer clog.Close()

	// 5. Event bus, optionally bridged to NATS
	bus := events.NewBus(logger)
	if cfg.NATS.Enabled {
		sink, err := events.NewNATSSink(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer sink.Close()
		bus.AddSink(sink)
	}

	// 6. Optional Redis-backed lookup fallbacks
	opts := store.Options{}
	if cfg.OCPI.KeepRemovedEVSEs {
		opts.KeepRemovedEVSEs = func(*domain.EVSE) bool { return true }
	} else {
		opts.KeepRemovedEVSEs = func(*domain.EVSE) bool { return false }
	}
	if cfg.Redis.Enabled {
		source, err := fallback.NewRedisSource(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer source.Close()
		opts.OnVerifyToken = source.TokenLookup()
		opts.OnSessionLookup = source.SessionLookup()
		opts.OnCDRLookup = source.CDRLookup()
	}

	// 7. Remote-party registry, replayed from the log
	reg := registry.NewRegistry(clog, bus, logger)
	if err := reg.Restore(); err != nil {
		logger.Fatal("Failed to restore remote parties", zap.Error(err))
	}

	// 8. Entity store, replayed from the log
	st := store.NewStore(clog, bus, opts, logger)
	ownRoles := make([]domain.CredentialsRole, 0, len(cfg.Parties))
	for _, p := range cfg.Parties {
		key := domain.NewPartyKey(p.CountryCode, p.PartyID)
		role := domain.Role(strings.ToUpper(p.Role))
		details := domain.BusinessDetails{Name: p.Name, Website: p.Website}
		st.AddParty(key, role, details, p.AllowDowngrades || cfg.OCPI.AllowDowngrades)
		ownRoles = append(ownRoles, domain.CredentialsRole{
			CountryCode:     key.CountryCode,
			PartyID:         key.PartyID,
			Role:            role,
			BusinessDetails: details,
		})
	}
	if err := st.Restore(); err != nil {
		logger.Fatal("Failed to restore entity data", zap.Error(err))
	}

	// 9. Seed pre-shared registration tokens (handshake entry points)
	ctx := context.Background()
	for _, t := range cfg.PreShared {
		key := domain.NewPartyKey(t.CountryCode, t.PartyID)
		role := domain.Role(strings.ToUpper(t.Role))
		party := registry.NewRemoteParty(
			domain.NewRemotePartyID(key, role),
			[]domain.CredentialsRole{{
				CountryCode:     key.CountryCode,
				PartyID:         key.PartyID,
				Role:            role,
				BusinessDetails: domain.BusinessDetails{Name: t.Name},
			}},
			[]domain.LocalAccessInfo{{
				AccessToken: t.Token,
				Status:      domain.AccessStatusAllowed,
			}},
			nil,
			domain.PartyStatusEnabled,
		)
		if _, err := reg.AddRemotePartyIfNotExists(ctx, party); err != nil {
			logger.Fatal("Failed to seed pre-shared token", zap.String("party", key.String()), zap.Error(err))
		}
	}

	// 10. Services
	versionsSvc := versions.NewService(cfg.HTTP.ExternalURL, logger)
	outbound := client.NewHTTPClient(cfg.OCPI.ClientTimeout, logger)
	credentialsSvc := credentials.NewService(reg, outbound, versionsSvc.VersionsURL(), ownRoles, logger)

	// 11. Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.HTTP.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	// Health check endpoints
	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		return c.SendString("Ready")
	})

	// Metrics endpoint for Prometheus
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// 12. OCPI routes
	ocpiGroup := app.Group("/ocpi", middleware.Authenticate(reg))
	handlers.NewVersionsHandler(versionsSvc, logger).Register(ocpiGroup)
	handlers.NewCredentialsHandler(credentialsSvc, logger).Register(ocpiGroup)

	entities := ocpiGroup.Group("", middleware.RequireAuth())
	handlers.NewLocationsHandler(st, logger).Register(entities)
	handlers.NewTariffsHandler(st, logger).Register(entities)
	handlers.NewSessionsHandler(st, logger).Register(entities)
	handlers.NewTokensHandler(st, logger).Register(entities)
	handlers.NewCDRsHandler(st, cfg.HTTP.ExternalURL, logger).Register(entities)

	// 13. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 14. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}
