package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/app"
	"github.com/jmehdipour/duebot/internal/db"
	"github.com/jmehdipour/duebot/migrations"
)

var withClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL schema (and the ClickHouse event tables with --clickhouse)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := app.Bootstrap(cfgPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		sqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		if err := apply(cmd.Context(), sqlDB, migrations.MySQL); err != nil {
			return err
		}
		log.Info("mysql migration complete", zap.String("file", migrations.MySQL))

		if !withClickHouse {
			return nil
		}
		chDB, err := db.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		if chDB == nil {
			return fmt.Errorf("clickhouse dsn is empty")
		}
		defer chDB.Close()

		if err := apply(cmd.Context(), chDB, migrations.ClickHouse); err != nil {
			return err
		}
		log.Info("clickhouse migration complete", zap.String("file", migrations.ClickHouse))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&withClickHouse, "clickhouse", false, "also create the ClickHouse event tables")
}

func apply(ctx context.Context, dbx *sqlx.DB, file string) error {
	stmts, err := migrations.Statements(file)
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", file, err)
	}
	for i, s := range stmts {
		if _, err := dbx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %s statement %d: %w", file, i+1, err)
		}
	}
	return nil
}
