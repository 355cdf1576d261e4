package web

import (
	"context"
	"sync"
	"time"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/usecase"
)

// --- Mock Use Cases ---

type mockSettings struct {
	usecase.SettingsUseCase // Embed interface for forward compatibility
	mu                      sync.Mutex
	stored                  map[string]string
	snap                    *model.SettingsSnapshot
	ReloadError             error
}

func newMockSettings() *mockSettings {
	return &mockSettings{stored: map[string]string{}, snap: model.NewSettingsSnapshot(nil, 0, time.Time{})}
}

func (m *mockSettings) Snapshot() *model.SettingsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockSettings) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[key] = value
	return nil
}

func (m *mockSettings) Reload(ctx context.Context) (*model.SettingsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReloadError != nil {
		return m.snap, m.ReloadError
	}
	entries := make([]*model.AppSetting, 0, len(m.stored))
	for k, v := range m.stored {
		entries = append(entries, &model.AppSetting{Key: k, Value: v})
	}
	m.snap = model.NewSettingsSnapshot(entries, m.snap.Version+1, m.snap.LoadedAt)
	return m.snap, nil
}

type mockWallets struct {
	usecase.WalletUseCase
	AdjustFunc func(ctx context.Context, userID string, delta int64, reason string) (*model.CoinTransaction, model.WalletChange, error)
	AuditFunc  func(ctx context.Context, userID string) (*usecase.WalletAudit, error)
}

func (m *mockWallets) Adjust(ctx context.Context, userID string, delta int64, reason string) (*model.CoinTransaction, model.WalletChange, error) {
	return m.AdjustFunc(ctx, userID, delta, reason)
}

func (m *mockWallets) Audit(ctx context.Context, userID string) (*usecase.WalletAudit, error) {
	return m.AuditFunc(ctx, userID)
}

type mockSubs struct {
	usecase.SubscriptionUseCase
	rows    map[string][]*model.Subscription
	history map[string][]*model.SubscriptionHistory
}

func (m *mockSubs) List(ctx context.Context, userID string) ([]*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return m.rows[userID], nil
}

func (m *mockSubs) History(ctx context.Context, subscriptionID string) ([]*model.SubscriptionHistory, error) {
	return m.history[subscriptionID], nil
}

type mockCatalog struct {
	usecase.CatalogUseCase
	plans     []*model.PricingPlan
	promos    []*model.Promo
	SaveError error
}

func (m *mockCatalog) Plans(ctx context.Context) ([]*model.PricingPlan, error) { return m.plans, nil }

func (m *mockCatalog) SavePlan(ctx context.Context, p *model.PricingPlan) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.plans = append(m.plans, p)
	return nil
}

func (m *mockCatalog) SavePromo(ctx context.Context, p *model.Promo) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	p.Coupon = model.NormalizeCoupon(p.Coupon)
	m.promos = append(m.promos, p)
	return nil
}
