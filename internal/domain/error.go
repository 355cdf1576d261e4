package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrOperationFailed  = errors.New("operation failed")
	ErrReadDatabaseRow  = errors.New("failed to read database row")
	ErrInvalidExecutor  = errors.New("invalid query executor")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrGatewayFailure   = errors.New("payment gateway failure")
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// Billing / reconciliation
	ErrUserNotFound          = errors.New("user not found")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrUnknownPlan           = errors.New("unknown pricing plan")
	ErrInvalidTransition     = errors.New("invalid subscription status transition")
	ErrSubscriptionTerminal  = errors.New("subscription is canceled")
	ErrPromoInvalid          = errors.New("invalid coupon")
	ErrPromoInactive         = errors.New("coupon inactive")
	ErrPromoExpired          = errors.New("coupon expired")
	ErrSettingMissing        = errors.New("setting not configured")
	ErrUnsupportedEventShape = errors.New("unsupported billing event payload")
	ErrEventIgnored          = errors.New("billing event type not handled")
)
