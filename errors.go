package imarket

import "errors"

// Authorization errors
var (
	// ErrNotAuthorized means the caller lacks the role an operation requires
	ErrNotAuthorized = errors.New("not authorized")

	// ErrPaused means settlement and balance movement are halted
	ErrPaused = errors.New("paused")

	// ErrReentrantCall means a guarded operation re-entered itself
	ErrReentrantCall = errors.New("reentrant call")
)

// Validation errors
var (
	// ErrBadAddress means a required address argument is the zero address
	ErrBadAddress = errors.New("bad address")

	// ErrFeeRateTooHigh means the platform fee rate exceeds the fixed maximum
	ErrFeeRateTooHigh = errors.New("fee rate too high")

	// ErrPartnerRateTooHigh means a partner share rate exceeds 100%
	ErrPartnerRateTooHigh = errors.New("partner rate too high")

	// ErrOrderExpired means the order's expiry timestamp has passed
	ErrOrderExpired = errors.New("order expired")

	// ErrOfferExpired means the offer's expiry timestamp has passed
	ErrOfferExpired = errors.New("offer expired")

	// ErrPriceTooLow means the offered price is below the order's minimum
	ErrPriceTooLow = errors.New("price below minimum")

	// ErrAssetMismatch means order and offer reference different assets
	ErrAssetMismatch = errors.New("asset mismatch")

	// ErrReceiverMismatch means the order restricts the receiver and the
	// buyer is someone else
	ErrReceiverMismatch = errors.New("receiver mismatch")

	// ErrOwnerMismatch means the order signature does not recover to the
	// asset's current owner
	ErrOwnerMismatch = errors.New("owner mismatch")

	// ErrUnsupportedAssetContract means the named asset contract is not
	// whitelisted
	ErrUnsupportedAssetContract = errors.New("unsupported asset contract")

	// ErrProtectedAssetContract means the platform's own registry cannot be
	// removed from the whitelist
	ErrProtectedAssetContract = errors.New("protected asset contract")
)

// Replay errors
var (
	// ErrOrderAlreadyUsed means the order's nonce was consumed before
	ErrOrderAlreadyUsed = errors.New("order already used")

	// ErrOfferAlreadyUsed means the offer's nonce was consumed before
	ErrOfferAlreadyUsed = errors.New("offer already used")
)

// State errors
var (
	// ErrInsufficientBalance means the deposited balance cannot cover the
	// requested movement
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnexpectedValue means native value was attached where none is
	// accepted
	ErrUnexpectedValue = errors.New("unexpected attached value")

	// ErrZeroAmount means a deposit or withdrawal of zero was requested
	ErrZeroAmount = errors.New("zero amount")

	// ErrNothingToWithdraw means the addressed fee pool is empty
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
)
