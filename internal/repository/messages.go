package repository

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
)

// MessagesRepository defines persistence for the message_queue table.
type MessagesRepository interface {
	// InsertPending stores m with status=pending. It reports false when a row
	// with the same idempotency key already exists.
	InsertPending(ctx context.Context, tx *sqlx.Tx, m model.QueuedMessage) (bool, error)
	ListPending(ctx context.Context, tenantID int64, asOf time.Time) ([]model.QueuedMessage, error)
	ListAllPending(ctx context.Context, asOf time.Time) ([]model.QueuedMessage, error)
	// MarkSent and MarkError only move pending rows; they report whether a row changed.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	MarkError(ctx context.Context, id string, note string) (bool, error)
	ListByTenant(ctx context.Context, tenantID int64, status model.MessageStatus, limit, offset int) ([]model.QueuedMessage, error)
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

const messageColumns = `id, tenant_id, client_id, template_id, phone, variables, scheduled_date,
		       status, error_note, sent_at, idempotency_key, created_at, updated_at`

func (r *MessagesRepositoryImpl) InsertPending(ctx context.Context, tx *sqlx.Tx, m model.QueuedMessage) (bool, error) {
	const q = `
		INSERT INTO message_queue
		    (id, tenant_id, client_id, template_id, phone, variables, scheduled_date, status, idempotency_key, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,         ?,           ?,     ?,         ?,              'pending', ?,             NOW(),      NOW())
		ON DUPLICATE KEY UPDATE id = id
	`
	var inserted bool
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			m.ID, m.TenantID, m.ClientID, m.TemplateID, m.Phone, m.Variables,
			m.ScheduledDate.Format(DateLayout), m.IdempotencyKey,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (r *MessagesRepositoryImpl) ListPending(ctx context.Context, tenantID int64, asOf time.Time) ([]model.QueuedMessage, error) {
	var rows []model.QueuedMessage
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+messageColumns+`
		  FROM message_queue
		 WHERE tenant_id = ? AND status = 'pending' AND scheduled_date <= ?
		 ORDER BY id
	`, tenantID, asOf.Format(DateLayout))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessagesRepositoryImpl) ListAllPending(ctx context.Context, asOf time.Time) ([]model.QueuedMessage, error) {
	var rows []model.QueuedMessage
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+messageColumns+`
		  FROM message_queue
		 WHERE status = 'pending' AND scheduled_date <= ?
		 ORDER BY id
	`, asOf.Format(DateLayout))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessagesRepositoryImpl) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.transition(ctx, `
		UPDATE message_queue
		   SET status = 'sent', sent_at = ?, error_note = NULL, updated_at = NOW()
		 WHERE id = ? AND status = 'pending'
	`, at.UTC(), id)
}

// MaxErrorNote matches message_queue.error_note VARCHAR(512).
const MaxErrorNote = 512

func (r *MessagesRepositoryImpl) MarkError(ctx context.Context, id string, note string) (bool, error) {
	return r.transition(ctx, `
		UPDATE message_queue
		   SET status = 'error', error_note = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'pending'
	`, truncateNote(note, MaxErrorNote), id)
}

// truncateNote cuts s to at most max bytes without splitting a rune.
func truncateNote(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (r *MessagesRepositoryImpl) transition(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MessagesRepositoryImpl) ListByTenant(ctx context.Context, tenantID int64, status model.MessageStatus, limit, offset int) ([]model.QueuedMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + messageColumns + ` FROM message_queue WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	q += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.QueuedMessage
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
