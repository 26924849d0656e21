package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
)

// SettingsRepository stores per-tenant schedule overrides as rows of
// tenant_settings(tenant_id, setting_key, setting_value).
type SettingsRepository interface {
	// TenantsWithCustomSchedule lists tenants holding at least one schedule key.
	TenantsWithCustomSchedule(ctx context.Context) ([]int64, error)
	GetSchedule(ctx context.Context, tenantID int64) (model.TenantSchedule, error)
	// UpsertSchedule writes non-nil times and deletes nil ones, atomically.
	UpsertSchedule(ctx context.Context, tx *sqlx.Tx, s model.TenantSchedule) error
}

type SettingsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepositoryImpl {
	return &SettingsRepositoryImpl{db: db}
}

var _ SettingsRepository = (*SettingsRepositoryImpl)(nil)

func (r *SettingsRepositoryImpl) TenantsWithCustomSchedule(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT tenant_id
		  FROM tenant_settings
		 WHERE setting_key IN (?, ?)
		 ORDER BY tenant_id
	`, model.SettingCheckTime, model.SettingSendTime)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SettingsRepositoryImpl) GetSchedule(ctx context.Context, tenantID int64) (model.TenantSchedule, error) {
	var rows []struct {
		Key   string `db:"setting_key"`
		Value string `db:"setting_value"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT setting_key, setting_value
		  FROM tenant_settings
		 WHERE tenant_id = ? AND setting_key IN (?, ?)
	`, tenantID, model.SettingCheckTime, model.SettingSendTime)
	if err != nil {
		return model.TenantSchedule{}, err
	}

	s := model.TenantSchedule{TenantID: tenantID}
	for _, row := range rows {
		v := row.Value
		switch row.Key {
		case model.SettingCheckTime:
			s.CheckTime = &v
		case model.SettingSendTime:
			s.SendTime = &v
		}
	}
	return s, nil
}

func (r *SettingsRepositoryImpl) UpsertSchedule(ctx context.Context, tx *sqlx.Tx, s model.TenantSchedule) error {
	const upsert = `
		INSERT INTO tenant_settings (tenant_id, setting_key, setting_value, updated_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value), updated_at = NOW()
	`
	const del = `DELETE FROM tenant_settings WHERE tenant_id = ? AND setting_key = ?`

	pairs := []struct {
		key string
		val *string
	}{
		{model.SettingCheckTime, s.CheckTime},
		{model.SettingSendTime, s.SendTime},
	}

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		for _, p := range pairs {
			var err error
			if p.val == nil {
				_, err = tx.ExecContext(ctx, del, s.TenantID, p.key)
			} else {
				_, err = tx.ExecContext(ctx, upsert, s.TenantID, p.key, *p.val)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
