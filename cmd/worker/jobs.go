package worker

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/app"
	"github.com/jmehdipour/duebot/internal/metrics"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/scheduler"
)

var tenantID int64

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Queue reminders for a tenant's clients that became overdue yesterday",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tenantID == model.GlobalTenant {
			return errors.New("--tenant is required for check")
		}
		return run(cmd, func(ctx context.Context, s *scheduler.Scheduler) error {
			s.RunJob(ctx, model.JobKey{TenantID: tenantID, Kind: model.JobCheck})
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Deliver pending reminders (one tenant, or all with --tenant 0)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, s *scheduler.Scheduler) error {
			s.RunJob(ctx, model.JobKey{TenantID: tenantID, Kind: model.JobSend})
			return nil
		})
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send the Telegram due-date digest to every active tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, s *scheduler.Scheduler) error {
			return s.RunDigest(ctx)
		})
	},
}

func init() {
	checkCmd.Flags().Int64Var(&tenantID, "tenant", 0, "tenant chat id")
	sendCmd.Flags().Int64Var(&tenantID, "tenant", 0, "tenant chat id, 0 drains every tenant")
}

func run(cmd *cobra.Command, job func(context.Context, *scheduler.Scheduler) error) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, log, err := app.Bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("worker job starting", zap.String("job", cmd.Name()), zap.Int64("tenant_id", tenantID))
	return job(cmd.Context(), a.Scheduler)
}
