package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
)

type TenantsRepository interface {
	// ListDigestTargets returns tenants in active or trial status.
	ListDigestTargets(ctx context.Context) ([]model.Tenant, error)
	Upsert(ctx context.Context, tx *sqlx.Tx, t model.Tenant) error
}

type TenantsRepositoryImpl struct {
	db *sqlx.DB
}

func NewTenantsRepository(db *sqlx.DB) *TenantsRepositoryImpl {
	return &TenantsRepositoryImpl{db: db}
}

var _ TenantsRepository = (*TenantsRepositoryImpl)(nil)

func (r *TenantsRepositoryImpl) ListDigestTargets(ctx context.Context) ([]model.Tenant, error) {
	var rows []model.Tenant
	err := r.db.SelectContext(ctx, &rows, `
		SELECT chat_id, name, status, created_at, updated_at
		  FROM tenants
		 WHERE status IN (?, ?)
		 ORDER BY chat_id
	`, model.TenantActive, model.TenantTrial)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TenantsRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, t model.Tenant) error {
	const q = `
		INSERT INTO tenants (chat_id, name, status, created_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status), updated_at = NOW()
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, t.ChatID, t.Name, t.Status)
		return err
	})
}
