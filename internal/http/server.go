package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/config"
	"github.com/jmehdipour/duebot/internal/http/middleware"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/scheduler"
)

// Scheduler is the part of the scheduler driven over HTTP.
type Scheduler interface {
	IsRunning() bool
	Reschedule(ctx context.Context, tenantID int64, checkTime, sendTime string) error
	RunNow(ctx context.Context) error
	Jobs() []scheduler.JobInfo
}

// QueueLister reads queued messages from the primary store.
type QueueLister interface {
	ListByTenant(ctx context.Context, tenantID int64, status model.MessageStatus, limit, offset int) ([]model.QueuedMessage, error)
}

type Deps struct {
	Scheduler  Scheduler
	Queue      QueueLister
	Deliveries repository.DeliveriesRepository // nil when ClickHouse is not configured
	Redis      *redis.Client
	Log        *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, d Deps) *Server {
	log := d.Log.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), requestLogger(log))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", healthHandler(d.Scheduler))

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Admin.APIKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.PUT("/tenants/:id/schedule", rescheduleHandler(d.Scheduler))
	v1.GET("/tenants/:id/queue", listQueueHandler(d.Queue))
	v1.GET("/tenants/:id/deliveries", listDeliveriesHandler(d.Deliveries))
	v1.POST("/digest/run", runDigestHandler(d.Scheduler))
	v1.GET("/jobs", listJobsHandler(d.Scheduler))

	return &Server{e: e, log: log}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLevel(level string) gommonlog.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return gommonlog.DEBUG
	case "warn":
		return gommonlog.WARN
	case "error":
		return gommonlog.ERROR
	default:
		return gommonlog.INFO
	}
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	})
}
