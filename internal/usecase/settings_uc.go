// File: internal/usecase/settings_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

// SettingsUseCase serves runtime key/value settings from an immutable
// snapshot. Readers never see a partially loaded snapshot; Reload swaps in a
// new one atomically.
type SettingsUseCase interface {
	Snapshot() *model.SettingsSnapshot
	Reload(ctx context.Context) (*model.SettingsSnapshot, error)
	Set(ctx context.Context, key, value string) error
	PriceID(plan string, cycle model.BillingCycle) (string, error)
	FrontendURL() (string, error)
}

var _ SettingsUseCase = (*settingsUC)(nil)

type settingsUC struct {
	repo    repository.AppSettingRepository
	log     *zerolog.Logger
	current atomic.Pointer[model.SettingsSnapshot]
	reload  sync.Mutex
	version int64
	now     func() time.Time
}

// NewSettingsUseCase starts with an empty snapshot; call Reload before serving.
func NewSettingsUseCase(repo repository.AppSettingRepository, logger *zerolog.Logger) *settingsUC {
	uc := &settingsUC{repo: repo, log: logger, now: time.Now}
	uc.current.Store(model.NewSettingsSnapshot(nil, 0, time.Time{}))
	return uc
}

func (s *settingsUC) Snapshot() *model.SettingsSnapshot { return s.current.Load() }

// Reload reads every setting and publishes a new snapshot. On error the
// previous snapshot stays in place.
func (s *settingsUC) Reload(ctx context.Context) (*model.SettingsSnapshot, error) {
	s.reload.Lock()
	defer s.reload.Unlock()

	entries, err := s.repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		return s.current.Load(), fmt.Errorf("load settings: %w", err)
	}
	s.version++
	snap := model.NewSettingsSnapshot(entries, s.version, s.now().UTC())
	s.current.Store(snap)
	s.log.Info().Int("keys", snap.Len()).Int64("version", snap.Version).Msg("settings snapshot loaded")
	return snap, nil
}

// Set persists one setting. The live snapshot is unchanged until the next Reload.
func (s *settingsUC) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidArgument
	}
	return s.repo.Upsert(ctx, repository.NoTX, &model.AppSetting{Key: key, Value: value})
}

func (s *settingsUC) PriceID(plan string, cycle model.BillingCycle) (string, error) {
	key := model.PriceSettingKey(plan, cycle)
	v, ok := s.Snapshot().Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrSettingMissing, key)
	}
	return v, nil
}

func (s *settingsUC) FrontendURL() (string, error) {
	v, ok := s.Snapshot().Get(model.SettingFrontendURL)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrSettingMissing, model.SettingFrontendURL)
	}
	return strings.TrimRight(v, "/"), nil
}
