package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
)

// DeliveriesRepository reads the message lifecycle events that ClickHouse
// ingests from the duebot.messages topic.
type DeliveriesRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, status model.MessageStatus, limit, offset int) ([]model.MessageEvent, error)
}

// DeliverySink appends consumed events to ClickHouse.
type DeliverySink interface {
	InsertBatch(ctx context.Context, evs []model.MessageEvent) error
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewDeliveriesRepository(ch *sqlx.DB) DeliveriesRepository {
	return &chDeliveriesRepository{ch: ch}
}

func NewDeliverySink(ch *sqlx.DB) DeliverySink {
	return &chDeliveriesRepository{ch: ch}
}

func (r *chDeliveriesRepository) ListByTenant(ctx context.Context, tenantID int64, status model.MessageStatus, limit, offset int) ([]model.MessageEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, tenant_id, client_id, phone, status, error, at
		FROM duebot.message_events
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.MessageEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertBatch sends evs as one ClickHouse block: the driver buffers every
// Exec on the prepared statement and flushes on Commit.
func (r *chDeliveriesRepository) InsertBatch(ctx context.Context, evs []model.MessageEvent) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO duebot.message_events (id, tenant_id, client_id, phone, status, error, at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range evs {
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.TenantID, ev.ClientID, ev.Phone, ev.Status.String(), ev.Error, ev.At,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
