// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
	"companion-billing/internal/domain/ports/repository"
	"companion-billing/internal/domain/ports/usecase"
	"companion-billing/internal/domain/reward"
	"companion-billing/internal/infra/logging"
	"companion-billing/internal/infra/metrics"
)

var _ usecase.EventReconciler = (*reconcileUC)(nil)

// ReconcileDeps wires the reconciliation use case.
type ReconcileDeps struct {
	Provider    string
	Tx          repository.TransactionManager
	Locker      repository.KeyLocker
	Users       repository.UserRepository
	Subs        repository.SubscriptionRepository
	History     repository.SubscriptionHistoryRepository
	Plans       repository.PricingPlanRepository
	Promos      repository.PromoRepository
	Redemptions repository.PromoRedemptionRepository
	Ledger      repository.CoinTransactionRepository
	Wallets     repository.WalletRepository
	Events      repository.WebhookEventRepository
	Publisher   adapter.LedgerPublisher
	// Clock defaults to time.Now; plan change proration reads it.
	Clock func() time.Time
}

type reconcileUC struct {
	provider    string
	tm          repository.TransactionManager
	locker      repository.KeyLocker
	users       repository.UserRepository
	subs        repository.SubscriptionRepository
	records     *subscriptionRecords
	plans       repository.PricingPlanRepository
	promos      repository.PromoRepository
	redemptions repository.PromoRedemptionRepository
	events      repository.WebhookEventRepository
	writer      *ledgerWriter
	publisher   adapter.LedgerPublisher
	keys        *keyedMutex
	now         func() time.Time
	log         *zerolog.Logger
}

// NewReconcileUseCase builds the billing event reconciler. Events for the same
// subscription are applied one at a time, both in process and across replicas.
func NewReconcileUseCase(d ReconcileDeps, logger *zerolog.Logger) *reconcileUC {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	provider := d.Provider
	if provider == "" {
		provider = "stripe"
	}
	return &reconcileUC{
		provider:    provider,
		tm:          d.Tx,
		locker:      d.Locker,
		users:       d.Users,
		subs:        d.Subs,
		records:     &subscriptionRecords{subs: d.Subs, history: d.History},
		plans:       d.Plans,
		promos:      d.Promos,
		redemptions: d.Redemptions,
		events:      d.Events,
		writer:      newLedgerWriter(d.Wallets, d.Ledger, logger),
		publisher:   d.Publisher,
		keys:        newKeyedMutex(),
		now:         clock,
		log:         logger,
	}
}

// HandleEvent applies ev exactly once. Every returned result is an
// acknowledgement, including Duplicate, Unresolved and Ignored outcomes. A
// non-nil error means nothing was committed and the processor should retry.
func (u *reconcileUC) HandleEvent(ctx context.Context, ev model.BillingEvent) (*model.ReconcileResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.HandleEvent")()
	if ev == nil || ev.EventID() == "" {
		return nil, domain.ErrInvalidArgument
	}
	start := time.Now()
	ctx = logging.WithEventID(ctx, ev.EventID())
	log := logging.With(ctx, u.log)

	key := ev.SubscriptionKey()
	if key == "" {
		key = ev.EventID()
	}
	unlock, err := u.keys.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", key, err)
	}
	defer unlock()

	var res *model.ReconcileResult
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err = u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		if err := u.locker.LockKey(ctx, tx, "sub:"+key); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		inserted, err := u.events.Begin(ctx, tx, &model.WebhookEventRecord{
			Provider:        u.provider,
			ProviderEventID: ev.EventID(),
			EventType:       string(ev.Kind()),
			ReceivedAt:      u.now().UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			res = settle(newResult(ev), model.OutcomeDuplicate, "event already processed")
			return nil
		}

		r, err := u.dispatch(ctx, tx, ev)
		if err != nil {
			return err
		}
		res = r
		return u.events.Finish(ctx, tx, u.provider, ev.EventID(), string(r.Outcome), r.Reason)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// A unique grant index rejected the write: the period was rewarded by a
		// concurrent delivery that committed first.
		log.Warn().Err(err).Msg("grant already recorded; acknowledging as duplicate")
		res, err = settle(newResult(ev), model.OutcomeDuplicate, "grant already recorded"), nil
	}
	took := time.Since(start)
	if err != nil {
		metrics.ObserveBillingEvent(string(ev.Kind()), "error", took)
		log.Error().Err(err).Str("kind", string(ev.Kind())).Msg("billing event failed")
		return nil, fmt.Errorf("reconcile %s %s: %w", ev.Kind(), ev.EventID(), err)
	}

	countCommitted(res.Entries)
	if len(res.Entries) > 0 && u.publisher != nil {
		if perr := u.publisher.PublishLedgerEntries(ctx, res.Entries); perr != nil {
			log.Warn().Err(perr).Int("entries", len(res.Entries)).Msg("publish ledger entries failed")
		}
	}
	metrics.ObserveBillingEvent(string(ev.Kind()), string(res.Outcome), took)

	lvl := log.Info()
	if res.Outcome == model.OutcomeUnresolved {
		lvl = log.Warn()
	}
	lvl.Str("kind", string(res.Kind)).
		Str("outcome", string(res.Outcome)).
		Str("reason", res.Reason).
		Str("user_id", res.UserID).
		Str("subscription_id", res.SubscriptionID).
		Int64("delta", res.Delta).
		Dur("took", took).
		Msg("billing event reconciled")
	return res, nil
}

func (u *reconcileUC) dispatch(ctx context.Context, tx repository.Tx, ev model.BillingEvent) (*model.ReconcileResult, error) {
	switch e := ev.(type) {
	case model.CheckoutCompleted:
		return u.checkoutCompleted(ctx, tx, e)
	case model.SubscriptionUpdated:
		return u.subscriptionChanged(ctx, tx, ev, lifecycle{
			customerID: e.CustomerID, email: e.Email, subID: e.SubscriptionID,
			priceID: e.PriceID, planName: e.PlanName, status: e.Status,
			period: e.Period, cancelAtPeriodEnd: e.CancelAtPeriodEnd,
		})
	case model.SubscriptionDeleted:
		return u.subscriptionChanged(ctx, tx, ev, lifecycle{
			customerID: e.CustomerID, email: e.Email, subID: e.SubscriptionID,
			priceID: e.PriceID, planName: e.PlanName, status: model.SubscriptionStatusCanceled,
			period: e.Period, cancelAtPeriodEnd: e.CancelAtPeriodEnd,
		})
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedEventShape, ev)
	}
}

func (u *reconcileUC) checkoutCompleted(ctx context.Context, tx repository.Tx, ev model.CheckoutCompleted) (*model.ReconcileResult, error) {
	res := newResult(ev)
	user, err := u.resolveUser(ctx, tx, ev.CustomerID, ev.Email, ev.ClientRef)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return settle(res, model.OutcomeUnresolved, "no user for customer or email"), nil
	}
	res.UserID = user.ID
	if err := u.linkCustomer(ctx, tx, user, ev.CustomerID); err != nil {
		return nil, err
	}

	switch ev.Mode {
	case model.CheckoutModePayment:
		return u.coinPackPurchased(ctx, tx, ev, res)
	case model.CheckoutModeSubscription:
		return u.subscriptionStarted(ctx, tx, ev, user, res)
	default:
		return settle(res, model.OutcomeIgnored, fmt.Sprintf("checkout mode %q", ev.Mode)), nil
	}
}

func (u *reconcileUC) coinPackPurchased(ctx context.Context, tx repository.Tx, ev model.CheckoutCompleted, res *model.ReconcileResult) (*model.ReconcileResult, error) {
	pack, err := u.planByPrice(ctx, tx, ev.PriceID)
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return settle(res, model.OutcomeUnresolved, "unknown price "+ev.PriceID), nil
	}
	t, change, err := u.writer.post(ctx, tx, posting{
		UserID:   res.UserID,
		Source:   model.SourceCoinPurchase,
		SourceID: pack.PricingID,
		OrderID:  ev.SessionID,
		Entry:    reward.CoinPack(pack),
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return settle(res, model.OutcomeNoChange, "coin pack grants no coins"), nil
	}
	addEntry(res, t, change)
	return settle(res, model.OutcomeApplied, ""), nil
}

func (u *reconcileUC) subscriptionStarted(ctx context.Context, tx repository.Tx, ev model.CheckoutCompleted, user *model.User, res *model.ReconcileResult) (*model.ReconcileResult, error) {
	if ev.SubscriptionID == "" {
		return settle(res, model.OutcomeUnresolved, "checkout without subscription id"), nil
	}
	existing, err := u.subs.FindLatestByPaymentSubscriptionID(ctx, tx, ev.SubscriptionID)
	switch {
	case err == nil:
		res.SubscriptionID = existing.ID
		return settle(res, model.OutcomeDuplicate, "subscription already recorded"), nil
	case !isNotFound(err):
		return nil, err
	}

	plan, err := u.planByPrice(ctx, tx, ev.PriceID)
	if err != nil {
		return nil, err
	}
	planName := ev.PlanName
	if planName == "" && plan != nil {
		planName = plan.PlanName
	}
	status := ev.Status
	if status == "" {
		status = model.SubscriptionStatusActive
	}
	sub, err := model.NewSubscription(user.ID, ev.CustomerID, ev.SubscriptionID, ev.PriceID, planName, status, ev.Period)
	if err != nil {
		return settle(res, model.OutcomeUnresolved, fmt.Sprintf("cannot record subscription: %v", err)), nil
	}
	if err := u.records.create(ctx, tx, sub, ev.EventID()); err != nil {
		return nil, err
	}
	res.SubscriptionID = sub.ID

	if ev.AmountDiscount > 0 {
		if err := u.redeemPromo(ctx, tx, user.ID, ev.SessionID); err != nil {
			return nil, err
		}
	}

	if plan == nil {
		return settle(res, model.OutcomeUnresolved, "unknown price "+ev.PriceID), nil
	}
	if sub.Status.Terminal() {
		return settle(res, model.OutcomeNoChange, "subscription already "+string(sub.Status)), nil
	}
	t, change, err := u.writer.post(ctx, tx, posting{
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		Source:         model.SourceSubscription,
		SourceID:       ev.SubscriptionID,
		OrderID:        ev.SessionID,
		Entry:          reward.Initial(plan, ev.Period),
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return settle(res, model.OutcomeNoChange, "plan grants no coins"), nil
	}
	if _, err := u.records.recordReward(ctx, tx, sub.ID, t.Coins, nil); err != nil {
		return nil, err
	}
	addEntry(res, t, change)
	return settle(res, model.OutcomeApplied, ""), nil
}

// redeemPromo settles the user's pending coupon redemption against the session.
func (u *reconcileUC) redeemPromo(ctx context.Context, tx repository.Tx, userID, orderID string) error {
	r, err := u.redemptions.FindLatestPendingByUser(ctx, tx, userID)
	if isNotFound(err) {
		u.log.Warn().Str("user_id", userID).Msg("discounted checkout without pending redemption")
		return nil
	}
	if err != nil {
		return err
	}
	if err := u.redemptions.MarkSuccess(ctx, tx, r.ID, orderID); err != nil {
		return err
	}
	return u.promos.IncrementApplied(ctx, tx, r.PromoID)
}

// lifecycle is the shape shared by subscription update and delete events.
type lifecycle struct {
	customerID        string
	email             string
	subID             string
	priceID           string
	planName          string
	status            model.SubscriptionStatus
	period            model.Period
	cancelAtPeriodEnd bool
}

func (u *reconcileUC) subscriptionChanged(ctx context.Context, tx repository.Tx, ev model.BillingEvent, lc lifecycle) (*model.ReconcileResult, error) {
	res := newResult(ev)
	user, err := u.resolveUser(ctx, tx, lc.customerID, lc.email, "")
	if err != nil {
		return nil, err
	}
	var userID string
	if user != nil {
		userID = user.ID
	}
	sub, err := u.records.locate(ctx, tx, lc.subID, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		res.UserID = userID
		return settle(res, model.OutcomeUnresolved, "no subscription for "+lc.subID), nil
	}
	res.UserID = sub.UserID
	res.SubscriptionID = sub.ID

	status := lc.status
	if status == "" {
		status = sub.Status
	}
	next, err := sub.Apply(model.SubscriptionChange{
		Status:            status,
		PriceID:           lc.priceID,
		PlanName:          lc.planName,
		Period:            lc.period,
		CancelAtPeriodEnd: lc.cancelAtPeriodEnd,
	})
	switch {
	case errors.Is(err, domain.ErrSubscriptionTerminal):
		return settle(res, model.OutcomeIgnored, "subscription already "+string(sub.Status)), nil
	case errors.Is(err, domain.ErrInvalidTransition):
		u.log.Warn().Str("subscription_id", sub.ID).Str("from", string(sub.Status)).Str("to", string(status)).Msg("ignoring invalid status transition")
		return settle(res, model.OutcomeIgnored, fmt.Sprintf("invalid transition %s -> %s", sub.Status, status)), nil
	case err != nil:
		return nil, err
	}
	if sub.CurrentPeriodEnd != nil && !lc.period.End.IsZero() && lc.period.End.Before(*sub.CurrentPeriodEnd) {
		return settle(res, model.OutcomeDuplicate, "stale period"), nil
	}

	if !next.Rewardable() {
		action := model.SubscriptionActionStatusChanged
		if next.Status == model.SubscriptionStatusCanceled {
			action = model.SubscriptionActionCanceled
		}
		if err := u.records.update(ctx, tx, sub, next, action, ev.EventID()); err != nil {
			return nil, err
		}
		return settle(res, model.OutcomeNoChange, "status "+string(next.Status)), nil
	}

	if reward.AdvancesPeriod(sub.CurrentPeriodEnd, lc.period.End) {
		return u.renewed(ctx, tx, ev, sub, next, lc, res)
	}
	if next.PriceID == sub.PriceID {
		action := model.SubscriptionActionUpdated
		if next.Status != sub.Status {
			action = model.SubscriptionActionStatusChanged
		}
		if err := u.records.update(ctx, tx, sub, next, action, ev.EventID()); err != nil {
			return nil, err
		}
		return settle(res, model.OutcomeNoChange, ""), nil
	}
	return u.planChanged(ctx, tx, ev, sub, next, res)
}

func (u *reconcileUC) renewed(ctx context.Context, tx repository.Tx, ev model.BillingEvent, sub, next *model.Subscription, lc lifecycle, res *model.ReconcileResult) (*model.ReconcileResult, error) {
	newEnd := lc.period.End.UTC()
	if !reward.IsRenewal(sub.CurrentPeriodEnd, sub.LastRewardedPeriodEnd, newEnd) {
		if err := u.records.update(ctx, tx, sub, next, model.SubscriptionActionUpdated, ev.EventID()); err != nil {
			return nil, err
		}
		return settle(res, model.OutcomeDuplicate, "period already rewarded"), nil
	}
	if err := u.records.update(ctx, tx, sub, next, model.SubscriptionActionRenewed, ev.EventID()); err != nil {
		return nil, err
	}
	plan, err := u.planByPrice(ctx, tx, next.PriceID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return settle(res, model.OutcomeUnresolved, "unknown price "+next.PriceID), nil
	}

	t, change, err := u.writer.post(ctx, tx, posting{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Source:         model.SourceSubscription,
		SourceID:       sub.PaymentSubscriptionID,
		Entry:          reward.Renewal(plan, lc.period),
	})
	if err != nil {
		return nil, err
	}
	var coins int64
	if t != nil {
		coins = t.Coins
	}
	if _, err := u.records.recordReward(ctx, tx, sub.ID, coins, &newEnd); err != nil {
		return nil, err
	}
	if t == nil {
		return settle(res, model.OutcomeNoChange, "plan grants no coins"), nil
	}
	addEntry(res, t, change)
	return settle(res, model.OutcomeApplied, ""), nil
}

func (u *reconcileUC) planChanged(ctx context.Context, tx repository.Tx, ev model.BillingEvent, sub, next *model.Subscription, res *model.ReconcileResult) (*model.ReconcileResult, error) {
	oldPlan, err := u.planByPrice(ctx, tx, sub.PriceID)
	if err != nil {
		return nil, err
	}
	newPlan, err := u.planByPrice(ctx, tx, next.PriceID)
	if err != nil {
		return nil, err
	}
	if oldPlan == nil || newPlan == nil {
		unknown := sub.PriceID
		if newPlan == nil {
			unknown = next.PriceID
		}
		if err := u.records.update(ctx, tx, sub, next, model.SubscriptionActionUpdated, ev.EventID()); err != nil {
			return nil, err
		}
		return settle(res, model.OutcomeUnresolved, "unknown price "+unknown), nil
	}
	if next.PlanName == sub.PlanName && newPlan.PlanName != "" {
		next.PlanName = newPlan.PlanName
	}

	action := model.SubscriptionActionUpgraded
	if newPlan.CoinReward < oldPlan.CoinReward {
		action = model.SubscriptionActionDowngraded
	}
	if err := u.records.update(ctx, tx, sub, next, action, ev.EventID()); err != nil {
		return nil, err
	}

	entry := reward.PlanChange(oldPlan, newPlan, currentPeriod(next), u.now())
	t, change, err := u.writer.post(ctx, tx, posting{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Source:         model.SourceSubscription,
		SourceID:       sub.PaymentSubscriptionID,
		Entry:          entry,
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return settle(res, model.OutcomeNoChange, "plan change moves no coins"), nil
	}
	if _, err := u.records.recordReward(ctx, tx, sub.ID, t.Coins, nil); err != nil {
		return nil, err
	}
	addEntry(res, t, change)
	return settle(res, model.OutcomeApplied, ""), nil
}

// resolveUser tries the processor customer id, then email, then the checkout
// client reference (our user id). A nil user means no match.
func (u *reconcileUC) resolveUser(ctx context.Context, tx repository.Tx, customerID, email, userRef string) (*model.User, error) {
	if customerID != "" {
		user, err := u.users.FindByPaymentCustomerID(ctx, tx, customerID)
		if err == nil {
			return user, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	if email = model.NormalizeEmail(email); email != "" {
		user, err := u.users.FindByEmail(ctx, tx, email)
		if err == nil {
			return user, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	if userRef != "" {
		user, err := u.users.FindByID(ctx, tx, userRef)
		if err == nil {
			return user, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

// linkCustomer stores the processor customer id on a user that has none.
func (u *reconcileUC) linkCustomer(ctx context.Context, tx repository.Tx, user *model.User, customerID string) error {
	if customerID == "" || user.PaymentCustomerID == customerID {
		return nil
	}
	if user.PaymentCustomerID != "" {
		u.log.Warn().Str("user_id", user.ID).Str("customer_id", customerID).Msg("user already linked to another customer")
		return nil
	}
	if err := u.users.SetPaymentCustomerID(ctx, tx, user.ID, customerID); err != nil {
		return err
	}
	user.PaymentCustomerID = customerID
	return nil
}

// planByPrice returns nil without error for a price missing from the catalog.
func (u *reconcileUC) planByPrice(ctx context.Context, tx repository.Tx, priceID string) (*model.PricingPlan, error) {
	if priceID == "" {
		return nil, nil
	}
	p, err := u.plans.FindByPricingID(ctx, tx, priceID)
	if errors.Is(err, domain.ErrUnknownPlan) || isNotFound(err) {
		return nil, nil
	}
	return p, err
}

func currentPeriod(s *model.Subscription) model.Period {
	var p model.Period
	if s.CurrentPeriodStart != nil {
		p.Start = *s.CurrentPeriodStart
	}
	if s.CurrentPeriodEnd != nil {
		p.End = *s.CurrentPeriodEnd
	}
	return p
}

func newResult(ev model.BillingEvent) *model.ReconcileResult {
	return &model.ReconcileResult{EventID: ev.EventID(), Kind: ev.Kind()}
}

func settle(res *model.ReconcileResult, outcome model.ReconcileOutcome, reason string) *model.ReconcileResult {
	res.Outcome = outcome
	res.Reason = reason
	return res
}

func addEntry(res *model.ReconcileResult, t *model.CoinTransaction, change model.WalletChange) {
	res.Entries = append(res.Entries, t)
	res.Delta += t.Coins
	res.Balance = change.Balance
}
