package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
)

type ClientsRepository interface {
	// FindOverdueByOneDay returns active, opted-in clients of the tenant whose
	// due date is exactly the day before today.
	FindOverdueByOneDay(ctx context.Context, tenantID int64, today time.Time) ([]model.Client, error)
	ListActive(ctx context.Context, tenantID int64) ([]model.Client, error)
	Upsert(ctx context.Context, tx *sqlx.Tx, c model.Client) error
}

type ClientsRepositoryImpl struct {
	db *sqlx.DB
}

func NewClientsRepository(db *sqlx.DB) *ClientsRepositoryImpl {
	return &ClientsRepositoryImpl{db: db}
}

var _ ClientsRepository = (*ClientsRepositoryImpl)(nil)

const clientColumns = `id, tenant_id, name, phone, package, value, due_date, active, billing_opt_in, created_at, updated_at`

func (r *ClientsRepositoryImpl) FindOverdueByOneDay(ctx context.Context, tenantID int64, today time.Time) ([]model.Client, error) {
	yesterday := today.AddDate(0, 0, -1).Format(DateLayout)

	var rows []model.Client
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+clientColumns+`
		  FROM clients
		 WHERE tenant_id = ?
		   AND due_date = ?
		   AND active = 1
		   AND billing_opt_in = 1
		 ORDER BY id
	`, tenantID, yesterday)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ClientsRepositoryImpl) ListActive(ctx context.Context, tenantID int64) ([]model.Client, error) {
	var rows []model.Client
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+clientColumns+`
		  FROM clients
		 WHERE tenant_id = ? AND active = 1
		 ORDER BY due_date, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert writes a client keyed by (tenant_id, phone). Used by the seed command.
func (r *ClientsRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, c model.Client) error {
	const q = `
		INSERT INTO clients
		    (tenant_id, name, phone, package, value, due_date, active, billing_opt_in, created_at, updated_at)
		VALUES
		    (?,         ?,    ?,     ?,       ?,     ?,        ?,      ?,              NOW(),      NOW())
		ON DUPLICATE KEY UPDATE
		    name = VALUES(name), package = VALUES(package), value = VALUES(value),
		    due_date = VALUES(due_date), active = VALUES(active),
		    billing_opt_in = VALUES(billing_opt_in), updated_at = NOW()
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			c.TenantID, c.Name, c.Phone, c.Package, c.Value,
			c.DueDate.Format(DateLayout), c.Active, c.BillingOptIn,
		)
		return err
	})
}
