package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/iliyamo/owleye/internal/broadcast"
	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/database"
	"github.com/iliyamo/owleye/internal/handler"
	"github.com/iliyamo/owleye/internal/logging"
	"github.com/iliyamo/owleye/internal/queue"
	"github.com/iliyamo/owleye/internal/repository"
	"github.com/iliyamo/owleye/internal/router"
	"github.com/iliyamo/owleye/internal/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE:  runServe,
	}
	cmd.Flags().Bool("migrate", true, "Apply the schema before serving")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	migrate, _ := cmd.Flags().GetBool("migrate")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	metrics, err := broadcast.NewMetrics(otel.GetMeterProvider().Meter("owleye"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	reg := broadcast.NewRegistry(metrics)
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	var pub service.Publisher = reg
	if cfg.Broadcast.RelayEnabled && rdb != nil {
		relay := broadcast.NewRedisRelay(reg, rdb, cfg.Broadcast.RelayPrefix, 1024)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("relay stopped")
			}
		}()
		pub = relay
	}

	var audit service.AuditSink
	if cfg.Audit.Enabled {
		p := queue.NewPublisher(cfg.Audit.URL, cfg.Audit.Queue, cfg.Audit.BufferSize)
		go p.Run(ctx)
		audit = p
		if cfg.Audit.ConsumerEnabled {
			c := queue.NewConsumer(cfg.Audit.URL, cfg.Audit.Queue, cfg.Audit.LogDir)
			go func() { _ = c.Run(ctx) }()
		}
	}

	venues := repository.NewVenueRepo(db)
	tickets := repository.NewTicketRepo(db)
	incidents := repository.NewIncidentRepo(db)
	sosRepo := repository.NewSOSRepo(db)

	location := service.NewLocationService(repository.NewPositionRepo(db), venues, pub)
	admission := service.NewAdmissionService(db, venues, tickets, location, pub, audit)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Dur("latency", v.Latency).Err(v.Error).Msg("request")
			return nil
		},
	}))

	router.Register(e, router.Handlers{
		Health:   handler.NewHealthHandler(db, reg),
		Venue:    handler.NewVenueHandler(service.NewVenueService(venues, tickets, incidents, sosRepo, reg), location),
		Ticket:   handler.NewTicketHandler(admission),
		Location: handler.NewLocationHandler(location),
		Incident: handler.NewIncidentHandler(service.NewIncidentService(incidents, venues, pub, audit)),
		SOS:      handler.NewSOSHandler(service.NewSOSService(sosRepo, venues, pub, audit)),
		Alert:    handler.NewAlertHandler(service.NewAlertService(repository.NewAlertRepo(db), venues, pub, audit)),
		WS:       handler.NewWSHandler(reg, broadcast.NewDispatcher(location), cfg.Broadcast).WithBaseContext(ctx),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: cfg.RateLimit,
		Cache:     cfg.Cache,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("db", cfg.DBDriver).Msg("listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
