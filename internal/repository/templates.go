package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
)

type TemplatesRepository interface {
	// LatestActive returns the most recently created active template of kind.
	LatestActive(ctx context.Context, tenantID int64, kind string) (model.Template, error)
	GetByID(ctx context.Context, id int64) (model.Template, error)
	Insert(ctx context.Context, tx *sqlx.Tx, t model.Template) (int64, error)
}

type TemplatesRepositoryImpl struct {
	db *sqlx.DB
}

func NewTemplatesRepository(db *sqlx.DB) *TemplatesRepositoryImpl {
	return &TemplatesRepositoryImpl{db: db}
}

var _ TemplatesRepository = (*TemplatesRepositoryImpl)(nil)

const templateColumns = `id, tenant_id, kind, name, content, active, created_at, updated_at`

func (r *TemplatesRepositoryImpl) LatestActive(ctx context.Context, tenantID int64, kind string) (model.Template, error) {
	var t model.Template
	err := r.db.GetContext(ctx, &t, `
		SELECT `+templateColumns+`
		  FROM templates
		 WHERE tenant_id = ? AND kind = ? AND active = 1
		 ORDER BY id DESC
		 LIMIT 1
	`, tenantID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	return t, err
}

func (r *TemplatesRepositoryImpl) GetByID(ctx context.Context, id int64) (model.Template, error) {
	var t model.Template
	err := r.db.GetContext(ctx, &t, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	return t, err
}

func (r *TemplatesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, t model.Template) (int64, error) {
	const q = `
		INSERT INTO templates (tenant_id, kind, name, content, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW(), NOW())
	`
	var id int64
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, t.TenantID, t.Kind, t.Name, t.Content, t.Active)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}
