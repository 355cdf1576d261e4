package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

var _ repository.AppSettingRepository = (*PostgresAppSettingRepo)(nil)

type PostgresAppSettingRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAppSettingRepo(pool *pgxpool.Pool) *PostgresAppSettingRepo {
	return &PostgresAppSettingRepo{pool: pool}
}

func (r *PostgresAppSettingRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.AppSetting, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT key, value, updated_at FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.AppSetting
	for rows.Next() {
		var s model.AppSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *PostgresAppSettingRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.AppSetting) error {
	const q = `
INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`
	_, err := execSQL(ctx, r.pool, tx, q, s.Key, s.Value)
	return err
}
