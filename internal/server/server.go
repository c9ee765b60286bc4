package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/index"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/store"
	"github.com/mohammad-safakhou/minutes/internal/telemetry"
	"github.com/mohammad-safakhou/minutes/internal/worker"
	"github.com/mohammad-safakhou/minutes/provider"
)

// Deps aggregates the shared dependencies the HTTP API serves from.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Orch      Statuser
	Queue     Enqueuer
	Index     Searcher
	Telemetry *telemetry.Telemetry
	Rdb       *redis.Client
}

// NewEcho builds the router with middleware and all API routes mounted.
func NewEcho(d Deps) (*echo.Echo, error) {
	secret := d.Config.Server.JWTSecret
	if secret == "" {
		return nil, fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	auth := &AuthHandler{Store: d.Store, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, auth.Secret) })
	me.GET("", func(c echo.Context) error {
		return c.JSON(200, MeResponse{UserID: c.Get("user_id").(string)})
	})

	mh := &MeetingsHandler{
		Store:  d.Store,
		Queue:  d.Queue,
		Orch:   d.Orch,
		Index:  d.Index,
		Files:  d.Config.Storage.File,
		Stream: d.Config.Worker.JobStream,
	}
	mh.Register(api.Group(""), auth.Secret)

	oh := &OpsHandler{
		Telemetry: d.Telemetry,
		Rdb:       d.Rdb,
		Stream:    d.Config.Worker.JobStream,
		Group:     d.Config.Worker.Group,
	}
	ops := api.Group("/ops")
	ops.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, auth.Secret) })
	oh.Register(ops)

	return e, nil
}

// Run wires the full service and listens on addr. When embedWorker is
// set the stream consumer and retention sweeper run inside this process
// and share the orchestrator, so job status reads see live progress.
func Run(ctx context.Context, cfg *config.Config, addr string, embedWorker bool) error {
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}
	if err := store.Migrate("file://migrations", dsn, "up", 0); err != nil {
		log.Printf("migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}

	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	prov, err := provider.New(cfg.LLM)
	if err != nil {
		return err
	}
	tele := telemetry.New(cfg.Telemetry, prometheus.DefaultRegisterer)
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch := pipeline.New(cfg, orchLogger, tele, prov, idx)

	if embedWorker {
		if err := streams.EnsureGroup(ctx, rdb, cfg.Worker.JobStream, cfg.Worker.Group); err != nil {
			return fmt.Errorf("ensure group: %w", err)
		}
		cons := streams.NewConsumer(rdb, cfg.Worker.JobStream, cfg.Worker.Group, cfg.Worker.Consumer)
		workerLogger := log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
		proc := worker.NewProcessor(workerLogger, st, cons, orch, cfg.Worker, nil)
		go func() {
			if err := proc.Start(ctx); err != nil && ctx.Err() == nil {
				log.Printf("worker stopped: %v", err)
			}
		}()
		sweepLogger := log.New(log.Writer(), "[RETAIN] ", log.LstdFlags)
		go worker.NewRetentionSweeper(sweepLogger, st, cfg.Worker).Start(ctx)
	}

	e, err := NewEcho(Deps{
		Config:    cfg,
		Store:     st,
		Orch:      orch,
		Queue:     streams.NewPublisher(rdb),
		Index:     idx,
		Telemetry: tele,
		Rdb:       rdb,
	})
	if err != nil {
		return err
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	if addr == "" {
		addr = ":10010"
	}
	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
