package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/app"
	"github.com/jmehdipour/duebot/internal/db"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/util"
)

const demoTenant int64 = 100200300

const demoTemplate = "Olá {nome}! Sua mensalidade de R$ {valor} venceu em {vencimento}. " +
	"Responda esta mensagem para receber o PIX."

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo tenant, template and clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := app.Bootstrap(cfgPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		sqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}

		log.Info("seeding demo tenant", zap.Int64("tenant", demoTenant))
		if err := seedDemo(cmd.Context(), sqlDB, cfg.Scheduler.TemplateKind, time.Now().In(loc)); err != nil {
			return err
		}
		log.Info("seed completed")
		return nil
	},
}

// seedDemo is idempotent: tenant and clients upsert on their unique keys and
// the template is only inserted when no active one exists.
func seedDemo(ctx context.Context, dbx *sqlx.DB, kind string, today time.Time) error {
	tenants := repository.NewTenantsRepository(dbx)
	clients := repository.NewClientsRepository(dbx)
	templates := repository.NewTemplatesRepository(dbx)

	_, err := templates.LatestActive(ctx, demoTenant, kind)
	needTemplate := errors.Is(err, repository.ErrNotFound)
	if err != nil && !needTemplate {
		return fmt.Errorf("lookup template: %w", err)
	}

	tx, err := dbx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tenants.Upsert(ctx, tx, model.Tenant{
		ChatID: demoTenant,
		Name:   "Academia Demo",
		Status: model.TenantActive,
	}); err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	if needTemplate {
		if _, err := templates.Insert(ctx, tx, model.Template{
			TenantID: demoTenant,
			Kind:     kind,
			Name:     "Cobrança padrão",
			Content:  demoTemplate,
			Active:   true,
		}); err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	demo := []struct {
		name, phone, pkg, value string
		offset                  int
	}{
		{"Ana Souza", "(11) 98765-4321", "Mensal", "129.90", -1},
		{"Bruno Lima", "21 99876-5432", "Trimestral", "349.00", -5},
		{"Carla Mendes", "011 91234-5678", "Mensal", "129.90", 0},
		{"Diego Alves", "+55 31 98888-7777", "Anual", "1199.00", 3},
		{"Elisa Rocha", "41 97777-6666", "Mensal", "99.90", 12},
	}
	for _, d := range demo {
		c := model.Client{
			TenantID:     demoTenant,
			Name:         d.name,
			Phone:        util.NormalizePhone(d.phone),
			Package:      d.pkg,
			Value:        decimal.RequireFromString(d.value),
			DueDate:      day.AddDate(0, 0, d.offset),
			Active:       true,
			BillingOptIn: true,
		}
		if err := clients.Upsert(ctx, tx, c); err != nil {
			return fmt.Errorf("upsert client %q: %w", d.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
