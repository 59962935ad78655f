package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"caselaw-proxy/config"
	"caselaw-proxy/internal/browser"
	"caselaw-proxy/internal/gate"
	"caselaw-proxy/internal/scrape"
)

// New assembles the echo instance: recovery, unified JSON error handling,
// CORS on every route, metrics, and the gated scrape routes.
func New(cfg *config.Config, scraper Scraper, strategy gate.Strategy) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
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
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	g := gate.New(cfg.Gate.APIKey, cfg.Gate.AllowedOrigins, strategy,
		cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, nil)
	e.Use(g.CORS())

	if cfg.Server.Metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	h := &Handler{
		Scraper: scraper,
		Service: cfg.Server.ServiceName,
		Logger:  httpLogger,
	}
	h.Register(e, g)
	return e
}

// Run wires the real dependencies and serves until the listener fails.
func Run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	strategy, err := buildStrategy(cfg)
	if err != nil {
		return err
	}
	gate.StartSweeper(context.Background(), strategy, cfg.RateLimit.SweepInterval)

	mgr := browser.NewManager(browser.Options{
		Headless:    cfg.Browser.Headless,
		ExecPath:    cfg.Browser.ExecPath,
		UserAgent:   cfg.Browser.UserAgent,
		MaxSessions: cfg.Browser.MaxSessions,
	}, nil)
	pipeline := scrape.New(mgr, cfg.Browser, cfg.Portal, nil)

	e := New(cfg, pipeline, strategy)
	log.Printf("listening on %s", cfg.Server.Listen)
	return e.Start(cfg.Server.Listen)
}

func buildStrategy(cfg *config.Config) (gate.Strategy, error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.RateLimit.Redis.Addr, err)
		}
		return gate.NewRedisLimiter(client, nil), nil
	default:
		return gate.NewMemoryLimiter(nil), nil
	}
}
