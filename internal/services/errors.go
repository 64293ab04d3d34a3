package services

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientCoins     = errors.New("insufficient coins")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrSignatureInvalid      = errors.New("payment signature invalid")
	ErrGateway               = errors.New("payment gateway error")
	ErrNotFound              = errors.New("not found")
	// ErrDuplicatePayment marks a payment that was already applied. Callers
	// treat it as success.
	ErrDuplicatePayment = errors.New("payment already applied")
	// ErrOrphanedDebit means coins were taken, the follow-up write failed and
	// the refund failed too. An operator alert has been raised.
	ErrOrphanedDebit = errors.New("debit could not be compensated")
	// ErrDuplicateRequest means a debit with the same request key is already
	// in the ledger. No coins moved.
	ErrDuplicateRequest = errors.New("request already charged")
	// ErrPaymentNeedsFollowup is a sell-out detected after the payment was
	// captured. The order is rejected and an operator alert is raised.
	ErrPaymentNeedsFollowup = fmt.Errorf("%w: payment captured and needs manual follow-up", ErrInsufficientInventory)

	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInvalidQuantity            = errors.New("invalid quantity")
	ErrInvalidKind                = errors.New("invalid order kind")
	ErrInvalidCategory            = errors.New("invalid recommendation category")
	ErrInvalidAsk                 = errors.New("invalid recommendation ask")
	ErrInvalidAnswer              = errors.New("invalid recommendation answer")
	ErrInvalidTempID              = errors.New("invalid temp id")
	ErrInvalidEventDraft          = errors.New("invalid event draft")
	ErrInvalidRecommendationValue = errors.New("invalid recommendation value")
	ErrOrderOwnership             = errors.New("order belongs to another user")
	ErrAlreadyResponded           = errors.New("recommendation already responded")
	ErrNotResponded               = errors.New("recommendation not responded yet")
	ErrAlreadyConsumed            = errors.New("recommendation already applied elsewhere")
	ErrAlreadyDecided             = errors.New("recommendation already decided")
	ErrPendingEventFinalized      = errors.New("pending event already finalized")
)
