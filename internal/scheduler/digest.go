package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/duedate"
	"github.com/jmehdipour/duebot/internal/metrics"
	"github.com/jmehdipour/duebot/internal/model"
)

// digestDetailLines caps the client lines printed per bucket.
const digestDetailLines = 3

// RunDigest sends every active or trial tenant a summary of its overdue,
// due-today and due-soon clients. A tenant's failure never affects another.
func (s *Scheduler) RunDigest(ctx context.Context) error {
	tenants, err := s.tenants.ListDigestTargets(ctx)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues("digest", "failed").Inc()
		return fmt.Errorf("%w: list digest tenants: %w", ErrStoreUnavailable, err)
	}

	today := s.today()
	for _, t := range tenants {
		s.digestTenant(ctx, t, today)
	}

	metrics.JobRunsTotal.WithLabelValues("digest", "ok").Inc()
	s.log.Info("digest done", zap.Int("tenants", len(tenants)))
	return nil
}

func (s *Scheduler) digestTenant(ctx context.Context, t model.Tenant, today time.Time) {
	log := s.log.With(zap.Int64("tenant_id", t.ChatID), zap.String("job", "digest"))

	clients, err := s.clients.ListActive(ctx, t.ChatID)
	if err != nil {
		metrics.DigestSentTotal.WithLabelValues("failed").Inc()
		log.Error("list active clients", zap.Error(err))
		return
	}
	if len(clients) == 0 {
		metrics.DigestSentTotal.WithLabelValues("empty").Inc()
		return
	}

	b := duedate.Partition(today, clients)
	if b.Empty() {
		metrics.DigestSentTotal.WithLabelValues("empty").Inc()
		log.Debug("nothing due soon")
		return
	}

	if err := s.notifier.Notify(ctx, t.ChatID, FormatDigest(today, b, len(clients))); err != nil {
		metrics.DigestSentTotal.WithLabelValues("failed").Inc()
		log.Warn("digest not delivered", zap.Error(err))
		return
	}
	metrics.DigestSentTotal.WithLabelValues("sent").Inc()
	log.Info("digest sent")
}

// FormatDigest renders the Telegram Markdown summary. Each bucket lists at
// most three clients followed by a "+N outros" line.
func FormatDigest(today time.Time, b duedate.Buckets, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 *ALERTA DIÁRIO - %s*\n\n", today.Format("02/01/2006"))

	if len(b.Overdue) > 0 {
		fmt.Fprintf(&sb, "🔴 *VENCIDOS (%d):*\n", len(b.Overdue))
		writeEntries(&sb, b.Overdue, func(e duedate.Entry) string {
			return fmt.Sprintf("• %s - há %d dia(s)", e.Client.Name, -e.Days)
		})
		sb.WriteString("\n")
	}

	if len(b.DueToday) > 0 {
		fmt.Fprintf(&sb, "⚠️ *VENCEM HOJE (%d):*\n", len(b.DueToday))
		writeEntries(&sb, b.DueToday, func(e duedate.Entry) string {
			return fmt.Sprintf("• %s - R$ %s", e.Client.Name, e.Client.Value.StringFixed(2))
		})
		sb.WriteString("\n")
	}

	if len(b.DueSoon) > 0 {
		fmt.Fprintf(&sb, "📅 *PRÓXIMOS 7 DIAS (%d):*\n", len(b.DueSoon))
		writeEntries(&sb, b.DueSoon, func(e duedate.Entry) string {
			return fmt.Sprintf("• %s - %d dia(s)", e.Client.Name, e.Days)
		})
	}

	fmt.Fprintf(&sb, "\n📊 Total de clientes: %d\n", total)
	sb.WriteString("💡 Use /vencimentos para detalhes")
	return sb.String()
}

func writeEntries(sb *strings.Builder, entries []duedate.Entry, line func(duedate.Entry) string) {
	for i, e := range entries {
		if i == digestDetailLines {
			fmt.Fprintf(sb, "• +%d outros\n", len(entries)-digestDetailLines)
			return
		}
		sb.WriteString(line(e))
		sb.WriteString("\n")
	}
}
