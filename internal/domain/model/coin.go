package model

import (
	"fmt"
	"math"
	"time"

	"companion-billing/internal/domain"

	"github.com/oklog/ulid/v2"
)

type SourceType string

const (
	SourceSubscription   SourceType = "subscription"
	SourceCoinPurchase   SourceType = "coin_purchase"
	SourceAdjustment     SourceType = "adjustment"
	SourceChat           SourceType = "chat"
	SourceImage          SourceType = "image"
	SourceCharacter      SourceType = "character"
	SourcePrivateContent SourceType = "private_content"
)

const (
	DescInitialReward    = "Subscription Initial Reward"
	DescRenewalReward    = "Subscription Renewal Reward"
	DescPlanChange       = "Subscription Plan Change Adjustment"
	DescCoinPackPurchase = "Coin Pack Purchase"
	DescAdminAdjustment  = "Manual Balance Adjustment"
)

// CoinTransaction is an immutable ledger entry. Coins is signed: positive
// values credit the wallet, negative values debit it.
type CoinTransaction struct {
	ID             string
	UserID         string
	SubscriptionID *string
	Coins          int64
	SourceType     SourceType
	SourceID       string
	OrderID        string
	Description    string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	CreatedAt      time.Time
}

// NewCoinTransaction validates and stamps a ledger entry. A zero amount is
// rejected because no-op entries are never written.
func NewCoinTransaction(userID string, coins int64, source SourceType, description string) (*CoinTransaction, error) {
	if userID == "" || coins == 0 || source == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &CoinTransaction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Coins:       coins,
		SourceType:  source,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Credit reports whether the entry adds coins.
func (t *CoinTransaction) Credit() bool { return t.Coins > 0 }

// UserWallet is the spendable coin balance of a user; one row per user.
type UserWallet struct {
	ID          string
	UserID      string
	CoinBalance int64
	UpdatedAt   time.Time
}

// WalletChange is the outcome of applying a delta to a wallet.
type WalletChange struct {
	UserID   string
	Previous int64
	Balance  int64
	Created  bool
}

// Applied is the amount that actually moved; it differs from the requested
// delta only when the balance was clamped.
func (c WalletChange) Applied() int64 { return c.Balance - c.Previous }

func (c WalletChange) Negative() bool { return c.Balance < 0 }

// NextBalance adds delta to prev, flooring at zero when clamp is set. A sum
// outside the int64 range is rejected rather than wrapped.
func NextBalance(prev, delta int64, clamp bool) (int64, error) {
	if (delta > 0 && prev > math.MaxInt64-delta) || (delta < 0 && prev < math.MinInt64-delta) {
		return 0, fmt.Errorf("%w: balance %d %+d overflows", domain.ErrInvalidArgument, prev, delta)
	}
	next := prev + delta
	if clamp && next < 0 {
		next = 0
	}
	return next, nil
}

// WalletDrift reports a wallet whose balance disagrees with its ledger.
type WalletDrift struct {
	UserID      string
	CoinBalance int64
	LedgerSum   int64
}

func (d WalletDrift) Difference() int64 { return d.CoinBalance - d.LedgerSum }
