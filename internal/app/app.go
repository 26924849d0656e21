package app

import (
	"fmt"
	"time"

	"github.com/jmehdipour/duebot/internal/config"
	"github.com/jmehdipour/duebot/internal/db"
	"github.com/jmehdipour/duebot/internal/dispatcher"
	"github.com/jmehdipour/duebot/internal/kafka"
	"github.com/jmehdipour/duebot/internal/lock"
	"github.com/jmehdipour/duebot/internal/logger"
	"github.com/jmehdipour/duebot/internal/notify"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/scheduler"
	"github.com/jmehdipour/duebot/internal/service/queue"
	"github.com/jmehdipour/duebot/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired process graph shared by serve and the one-shot
// worker commands.
type App struct {
	Cfg config.Config
	Log *zap.Logger

	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB      // nil when not configured
	Redis      *redis.Client // nil when unreachable
	Events     kafka.Publisher

	Queue      *queue.Service
	Scheduler  *scheduler.Scheduler
	Deliveries repository.DeliveriesRepository // nil without ClickHouse
}

// New opens every backing store and builds the scheduler. MySQL is
// mandatory; Redis, ClickHouse, Kafka and Telegram degrade to no-ops.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	mysqlDB, err := db.NewMySQL(cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}

	a := &App{Cfg: cfg, Log: log, MySQL: mysqlDB}

	if rdb, err := db.NewRedis(cfg.Redis); err != nil {
		log.Warn("redis unavailable, run locks and rate limiting disabled", zap.Error(err))
	} else {
		a.Redis = rdb
	}

	chDB, err := db.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		log.Warn("clickhouse unavailable, delivery history disabled", zap.Error(err))
	} else if chDB != nil {
		a.ClickHouse = chDB
		a.Deliveries = repository.NewDeliveriesRepository(chDB)
	}

	a.Events = kafka.NewPublisher(kafka.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	})

	var notifier notify.Notifier = notify.Disabled{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(notify.Config{
			Token:   cfg.Telegram.Token,
			APIURL:  cfg.Telegram.APIURL,
			Timeout: cfg.Telegram.Timeout,
		})
		if err != nil {
			log.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	} else {
		log.Info("telegram token not set, digest delivery disabled")
	}

	var locker lock.Locker = lock.Noop{}
	if a.Redis != nil {
		locker = lock.NewRunLock(a.Redis, cfg.Scheduler.LockTTL)
	}

	bridge := dispatcher.NewBridgeProvider(
		"whatsapp-bridge",
		cfg.Bridge.BaseURL,
		cfg.Bridge.SendPath,
		cfg.Bridge.TimeoutMs,
		cfg.Bridge.Breaker.FailThreshold,
		cfg.Bridge.Breaker.OpenForMs,
	)
	disp := dispatcher.NewDispatcher(
		[]dispatcher.Provider{bridge},
		cfg.Bridge.MaxAttempts,
		time.Duration(cfg.Bridge.TimeoutMs)*time.Millisecond,
	)

	templatesRepo := repository.NewTemplatesRepository(mysqlDB)
	a.Queue = queue.New(
		repository.NewMessagesRepository(mysqlDB),
		templatesRepo,
		a.Events,
		log,
		loc,
	)

	sender := worker.NewSender(
		templatesRepo,
		disp,
		a.Queue,
		log,
		cfg.Scheduler.SenderWorkers,
		cfg.Bridge.SessionPrefix,
		cfg.Scheduler.TemplateKind,
	)

	a.Scheduler = scheduler.New(scheduler.Deps{
		Settings: repository.NewSettingsRepository(mysqlDB),
		Clients:  repository.NewClientsRepository(mysqlDB),
		Tenants:  repository.NewTenantsRepository(mysqlDB),
		Queue:    a.Queue,
		Sender:   sender,
		Notifier: notifier,
		Locker:   locker,
		Engine:   scheduler.NewCronEngine(loc, log),
		Log:      log,
	}, scheduler.Options{
		Location:     loc,
		DefaultCheck: cfg.Scheduler.DefaultCheckTime,
		DefaultSend:  cfg.Scheduler.DefaultSendTime,
		TemplateKind: cfg.Scheduler.TemplateKind,
	})

	return a, nil
}

// Close releases connections in reverse order of New.
func (a *App) Close() {
	if err := a.Events.Close(); err != nil {
		a.Log.Warn("close kafka writer", zap.Error(err))
	}
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.MySQL.Close()
}

// Bootstrap loads config and builds the logger every command starts from.
func Bootstrap(cfgPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
