package repository

import (
	"context"

	"companion-billing/internal/domain/model"
)

type AppSettingRepository interface {
	ListAll(ctx context.Context, tx Tx) ([]*model.AppSetting, error)
	Upsert(ctx context.Context, tx Tx, s *model.AppSetting) error
}
