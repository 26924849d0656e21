package worker

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/app"
	"github.com/jmehdipour/duebot/internal/db"
	"github.com/jmehdipour/duebot/internal/kafka"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/worker"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Copy message lifecycle events from Kafka into ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, log, err := app.Bootstrap(cfgPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is empty")
		}
		chDB, err := db.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		if chDB == nil {
			return errors.New("clickhouse.dsn is empty")
		}
		defer chDB.Close()

		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer consumer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sink := worker.NewEventSink(consumer, repository.NewDeliverySink(chDB), log,
			cfg.Kafka.SinkBatch, cfg.Kafka.SinkFlush)

		log.Info("event sink started",
			zap.String("topic", cfg.Kafka.Topic), zap.String("group", cfg.Kafka.GroupID))
		return sink.Run(ctx)
	},
}
