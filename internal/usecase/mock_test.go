//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
	"companion-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// =============================
// In-memory store
// =============================

// memDB backs every in-memory repository. Stored values are never mutated in
// place, so a snapshot only needs to copy the maps.
type memDB struct {
	mu sync.Mutex

	seq         int
	users       map[string]*model.User
	subs        map[string]*model.Subscription
	subSeq      map[string]int
	history     []*model.SubscriptionHistory
	plans       map[string]*model.PricingPlan
	promos      map[string]*model.Promo
	redemptions map[string]*model.PromoRedemption
	ledger      []*model.CoinTransaction
	wallets     map[string]*model.UserWallet
	events      map[string]*model.WebhookEventRecord
	settings    map[string]*model.AppSetting

	// ErrOn makes the named operation fail, e.g. "ledger.Append".
	ErrOn map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		users:       map[string]*model.User{},
		subs:        map[string]*model.Subscription{},
		subSeq:      map[string]int{},
		plans:       map[string]*model.PricingPlan{},
		promos:      map[string]*model.Promo{},
		redemptions: map[string]*model.PromoRedemption{},
		wallets:     map[string]*model.UserWallet{},
		events:      map[string]*model.WebhookEventRecord{},
		settings:    map[string]*model.AppSetting{},
		ErrOn:       map[string]error{},
	}
}

func (db *memDB) fail(op string) error { return db.ErrOn[op] }

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memSnapshot struct {
	seq         int
	users       map[string]*model.User
	subs        map[string]*model.Subscription
	subSeq      map[string]int
	history     []*model.SubscriptionHistory
	plans       map[string]*model.PricingPlan
	promos      map[string]*model.Promo
	redemptions map[string]*model.PromoRedemption
	ledger      []*model.CoinTransaction
	wallets     map[string]*model.UserWallet
	events      map[string]*model.WebhookEventRecord
	settings    map[string]*model.AppSetting
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		seq:         db.seq,
		users:       copyMap(db.users),
		subs:        copyMap(db.subs),
		subSeq:      copyMap(db.subSeq),
		history:     append([]*model.SubscriptionHistory(nil), db.history...),
		plans:       copyMap(db.plans),
		promos:      copyMap(db.promos),
		redemptions: copyMap(db.redemptions),
		ledger:      append([]*model.CoinTransaction(nil), db.ledger...),
		wallets:     copyMap(db.wallets),
		events:      copyMap(db.events),
		settings:    copyMap(db.settings),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq, db.users, db.subs, db.subSeq, db.history = s.seq, s.users, s.subs, s.subSeq, s.history
	db.plans, db.promos, db.redemptions, db.ledger = s.plans, s.promos, s.redemptions, s.ledger
	db.wallets, db.events, db.settings = s.wallets, s.events, s.settings
}

// ---- Mock TransactionManager ----

// MockTxManager runs fn directly and restores the store when fn fails, which
// is enough to observe rollback in single-writer tests.
type MockTxManager struct {
	db         *memDB
	mu         sync.Mutex
	Calls      int
	LastOpts   pgx.TxOptions
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(db *memDB) *MockTxManager { return &MockTxManager{db: db} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.LastOpts = txOpt
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	snap := m.db.snapshot()
	if err := fn(ctx, repository.NoTX); err != nil {
		m.db.restore(snap)
		return err
	}
	return nil
}

// ---- Mock KeyLocker ----

type MockKeyLocker struct {
	mu   sync.Mutex
	Keys []string
	Err  error
}

var _ repository.KeyLocker = (*MockKeyLocker)(nil)

func (l *MockKeyLocker) LockKey(ctx context.Context, tx repository.Tx, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	return l.Err
}

// =============================
// Repositories
// =============================

// ---- Users ----

type MockUserRepo struct{ db *memDB }

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *u
	r.db.users[u.ID] = &cp
	return nil
}

func (r *MockUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *MockUserRepo) FindByPaymentCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.PaymentCustomerID != "" && u.PaymentCustomerID == customerID })
}

func (r *MockUserRepo) SetPaymentCustomerID(ctx context.Context, tx repository.Tx, userID, customerID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	for _, other := range r.db.users {
		if other.ID != userID && other.PaymentCustomerID == customerID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *u
	cp.PaymentCustomerID = customerID
	r.db.users[userID] = &cp
	return nil
}

// ---- Subscriptions ----

type MockSubscriptionRepo struct{ db *memDB }

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if err := r.db.fail("subs.Create"); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.subs[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.db.seq++
	r.db.subs[s.ID] = &cp
	r.db.subSeq[s.ID] = r.db.seq
	return nil
}

func (r *MockSubscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if err := r.db.fail("subs.Update"); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.subs[s.ID]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	cp := *s
	cp.TotalCoinsRewarded = stored.TotalCoinsRewarded
	cp.LastRewardedPeriodEnd = stored.LastRewardedPeriodEnd
	r.db.subs[s.ID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) RecordReward(ctx context.Context, tx repository.Tx, id string, coins int64, rewardedEnd *time.Time) (*model.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *stored
	cp.TotalCoinsRewarded += coins
	if rewardedEnd != nil && (cp.LastRewardedPeriodEnd == nil || rewardedEnd.After(*cp.LastRewardedPeriodEnd)) {
		end := *rewardedEnd
		cp.LastRewardedPeriodEnd = &end
	}
	r.db.subs[id] = &cp
	out := cp
	return &out, nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) latest(match func(*model.Subscription) bool) (*model.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var best *model.Subscription
	for id, s := range r.db.subs {
		if match(s) && (best == nil || r.db.subSeq[id] > r.db.subSeq[best.ID]) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockSubscriptionRepo) FindLatestByPaymentSubscriptionID(ctx context.Context, tx repository.Tx, paymentSubID string) (*model.Subscription, error) {
	return r.latest(func(s *model.Subscription) bool { return s.PaymentSubscriptionID == paymentSubID })
}

func (r *MockSubscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	return r.latest(func(s *model.Subscription) bool { return s.UserID == userID })
}

func (r *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.db.subs {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.db.subSeq[out[i].ID] > r.db.subSeq[out[j].ID] })
	return out, nil
}

// get returns the stored row for assertions.
func (r *MockSubscriptionRepo) get(processorSubID string) *model.Subscription {
	s, _ := r.FindLatestByPaymentSubscriptionID(context.Background(), nil, processorSubID)
	return s
}

type MockHistoryRepo struct{ db *memDB }

var _ repository.SubscriptionHistoryRepository = (*MockHistoryRepo)(nil)

func (r *MockHistoryRepo) Append(ctx context.Context, tx repository.Tx, h *model.SubscriptionHistory) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *h
	cp.ID = int64(len(r.db.history) + 1)
	r.db.history = append(r.db.history, &cp)
	return nil
}

func (r *MockHistoryRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.SubscriptionHistory, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.SubscriptionHistory
	for _, h := range r.db.history {
		if h.SubscriptionID == subscriptionID {
			out = append(out, h)
		}
	}
	return out, nil
}

// ---- Plans ----

type MockPlanRepo struct{ db *memDB }

var _ repository.PricingPlanRepository = (*MockPlanRepo)(nil)

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.PricingPlan) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *p
	r.db.plans[p.PricingID] = &cp
	return nil
}

func (r *MockPlanRepo) FindByPricingID(ctx context.Context, tx repository.Tx, pricingID string) (*model.PricingPlan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.plans[pricingID]
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	cp := *p
	return &cp, nil
}

func (r *MockPlanRepo) FindByNameAndCycle(ctx context.Context, tx repository.Tx, name string, cycle model.BillingCycle) (*model.PricingPlan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.plans {
		if p.PlanName == name && p.BillingCycle == cycle {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrUnknownPlan
}

func (r *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.PricingPlan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*model.PricingPlan, 0, len(r.db.plans))
	for _, p := range r.db.plans {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PricingID < out[j].PricingID })
	return out, nil
}

// ---- Promos ----

type MockPromoRepo struct{ db *memDB }

var (
	_ repository.PromoRepository           = (*MockPromoRepo)(nil)
	_ repository.PromoRedemptionRepository = (*MockPromoRepo)(nil)
)

func (r *MockPromoRepo) Save(ctx context.Context, tx repository.Tx, p *model.Promo) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *p
	r.db.promos[p.ID] = &cp
	return nil
}

func (r *MockPromoRepo) FindByCoupon(ctx context.Context, tx repository.Tx, coupon string) (*model.Promo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.promos {
		if p.Coupon == model.NormalizeCoupon(coupon) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPromoInvalid
}

func (r *MockPromoRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Promo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*model.Promo, 0, len(r.db.promos))
	for _, p := range r.db.promos {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MockPromoRepo) IncrementApplied(ctx context.Context, tx repository.Tx, promoID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.promos[promoID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *p
	cp.AppliedCount++
	r.db.promos[promoID] = &cp
	return nil
}

func (r *MockPromoRepo) Create(ctx context.Context, tx repository.Tx, red *model.PromoRedemption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *red
	r.db.redemptions[red.ID] = &cp
	return nil
}

func (r *MockPromoRepo) FindLatestPendingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PromoRedemption, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var best *model.PromoRedemption
	for _, red := range r.db.redemptions {
		if red.UserID == userID && red.Status == model.RedemptionPending && (best == nil || red.AppliedAt.After(best.AppliedAt)) {
			best = red
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockPromoRepo) MarkSuccess(ctx context.Context, tx repository.Tx, id, orderID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	red, ok := r.db.redemptions[id]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *red
	cp.Status = model.RedemptionSuccess
	cp.OrderID = orderID
	r.db.redemptions[id] = &cp
	return nil
}

// ---- Ledger & wallets ----

type MockLedgerRepo struct{ db *memDB }

var _ repository.CoinTransactionRepository = (*MockLedgerRepo)(nil)

func (r *MockLedgerRepo) Append(ctx context.Context, tx repository.Tx, t *model.CoinTransaction) error {
	if err := r.db.fail("ledger.Append"); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	grant := t.Description == model.DescInitialReward || t.Description == model.DescRenewalReward
	if grant && t.SubscriptionID != nil && t.PeriodEnd != nil {
		for _, e := range r.db.ledger {
			if e.SubscriptionID != nil && *e.SubscriptionID == *t.SubscriptionID &&
				e.PeriodEnd != nil && e.PeriodEnd.Equal(*t.PeriodEnd) &&
				(e.Description == model.DescInitialReward || e.Description == model.DescRenewalReward) {
				return fmt.Errorf("ledger entry for period already exists: %w", domain.ErrAlreadyExists)
			}
		}
	}
	cp := *t
	r.db.ledger = append(r.db.ledger, &cp)
	return nil
}

func (r *MockLedgerRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.CoinTransaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.CoinTransaction
	for i := len(r.db.ledger) - 1; i >= 0; i-- {
		if r.db.ledger[i].UserID == userID {
			out = append(out, r.db.ledger[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MockLedgerRepo) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var sum int64
	for _, e := range r.db.ledger {
		if e.UserID == userID {
			sum += e.Coins
		}
	}
	return sum, nil
}

func (r *MockLedgerRepo) SumBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var sum int64
	for _, e := range r.db.ledger {
		if e.SubscriptionID != nil && *e.SubscriptionID == subscriptionID {
			sum += e.Coins
		}
	}
	return sum, nil
}

type MockWalletRepo struct{ db *memDB }

var _ repository.WalletRepository = (*MockWalletRepo)(nil)

func (r *MockWalletRepo) ApplyDelta(ctx context.Context, tx repository.Tx, userID string, delta int64, clamp bool) (model.WalletChange, error) {
	if err := r.db.fail("wallets.ApplyDelta"); err != nil {
		return model.WalletChange{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	change := model.WalletChange{UserID: userID}
	w, ok := r.db.wallets[userID]
	if !ok {
		w = &model.UserWallet{ID: "w-" + userID, UserID: userID}
		change.Created = true
	}
	change.Previous = w.CoinBalance
	next, err := model.NextBalance(w.CoinBalance, delta, clamp)
	if err != nil {
		return model.WalletChange{}, err
	}
	change.Balance = next
	cp := *w
	cp.CoinBalance = next
	cp.UpdatedAt = time.Now()
	r.db.wallets[userID] = &cp
	return change, nil
}

func (r *MockWalletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserWallet, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	w, ok := r.db.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *MockWalletRepo) ListDrift(ctx context.Context, tx repository.Tx, limit int) ([]model.WalletDrift, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sums := map[string]int64{}
	for _, e := range r.db.ledger {
		sums[e.UserID] += e.Coins
	}
	var out []model.WalletDrift
	for uid, w := range r.db.wallets {
		if w.CoinBalance != sums[uid] {
			out = append(out, model.WalletDrift{UserID: uid, CoinBalance: w.CoinBalance, LedgerSum: sums[uid]})
		}
	}
	return out, nil
}

// balance returns the stored wallet balance for assertions.
func (r *MockWalletRepo) balance(userID string) int64 {
	w, err := r.FindByUser(context.Background(), nil, userID)
	if err != nil {
		return 0
	}
	return w.CoinBalance
}

// ---- Webhook events ----

type MockEventRepo struct{ db *memDB }

var _ repository.WebhookEventRepository = (*MockEventRepo)(nil)

func (r *MockEventRepo) Begin(ctx context.Context, tx repository.Tx, rec *model.WebhookEventRecord) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := rec.Provider + "/" + rec.ProviderEventID
	if _, ok := r.db.events[key]; ok {
		return false, nil
	}
	cp := *rec
	r.db.events[key] = &cp
	return true, nil
}

func (r *MockEventRepo) Finish(ctx context.Context, tx repository.Tx, provider, providerEventID, outcome, processingErr string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := provider + "/" + providerEventID
	rec, ok := r.db.events[key]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *rec
	cp.Outcome = outcome
	cp.ProcessingError = processingErr
	now := time.Now()
	cp.ProcessedAt = &now
	r.db.events[key] = &cp
	return nil
}

func (r *MockEventRepo) Find(ctx context.Context, tx repository.Tx, provider, providerEventID string) (*model.WebhookEventRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.events[provider+"/"+providerEventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ---- Settings ----

type MockSettingRepo struct {
	db          *memDB
	ListAllFunc func(ctx context.Context, tx repository.Tx) ([]*model.AppSetting, error)
}

var _ repository.AppSettingRepository = (*MockSettingRepo)(nil)

func (r *MockSettingRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.AppSetting, error) {
	if r.ListAllFunc != nil {
		return r.ListAllFunc(ctx, tx)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*model.AppSetting, 0, len(r.db.settings))
	for _, s := range r.db.settings {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MockSettingRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.AppSetting) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *s
	r.db.settings[s.Key] = &cp
	return nil
}

// =============================
// Adapters
// =============================

type MockGateway struct {
	mu       sync.Mutex
	Sessions []adapter.CheckoutRequest

	CreateCustomerFunc        func(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSessionFunc func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error)
	GetSubscriptionFunc       func(ctx context.Context, id string) (*adapter.ProcessorSubscription, error)
}

var _ adapter.BillingGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "stripe" }

func (g *MockGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	if g.CreateCustomerFunc != nil {
		return g.CreateCustomerFunc(ctx, email, userID)
	}
	return "cus_" + userID, nil
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	g.Sessions = append(g.Sessions, req)
	n := len(g.Sessions)
	g.mu.Unlock()
	if g.CreateCheckoutSessionFunc != nil {
		return g.CreateCheckoutSessionFunc(ctx, req)
	}
	id := fmt.Sprintf("cs_test_%d", n)
	return &adapter.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func (g *MockGateway) GetSubscription(ctx context.Context, id string) (*adapter.ProcessorSubscription, error) {
	if g.GetSubscriptionFunc != nil {
		return g.GetSubscriptionFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

type MockPublisher struct {
	mu        sync.Mutex
	Published []*model.CoinTransaction
	Err       error
}

var _ adapter.LedgerPublisher = (*MockPublisher)(nil)

func (p *MockPublisher) PublishLedgerEntries(ctx context.Context, entries []*model.CoinTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Published = append(p.Published, entries...)
	return nil
}

func (p *MockPublisher) Close() error { return nil }

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string) (bool, error)
	Keys      []string
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (l *MockRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.Keys = append(l.Keys, key)
	if l.AllowFunc != nil {
		return l.AllowFunc(ctx, key)
	}
	return true, nil
}
