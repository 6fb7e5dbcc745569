package domain

import "errors"

// Ledger and evaluator errors. Every one is a local rejection of a single
// operation: state before and after a failed operation is identical.
var (
	// ErrDuplicatePolicy is returned when a holder who already has a policy
	// record attempts another purchase.
	ErrDuplicatePolicy = errors.New("holder already has a policy")

	// ErrIncorrectPremium is returned when the amount paid does not exactly
	// match the required premium. Escrow never receives a mismatched amount.
	ErrIncorrectPremium = errors.New("amount paid does not match required premium")

	// ErrNoPolicyFound is returned by self-service lookup when the holder has
	// no policy.
	ErrNoPolicyFound = errors.New("no policy found for holder")

	// ErrUnauthorized is returned when a caller lacks the insurer capability
	// for an insurer-only operation.
	ErrUnauthorized = errors.New("caller is not the insurer")

	// ErrNoSurplus is returned when the escrow holds nothing beyond its
	// outstanding obligations.
	ErrNoSurplus = errors.New("no withdrawable surplus in escrow")

	// ErrPolicyNotPurchased is returned by verification when the holder has no
	// policy in the purchased state.
	ErrPolicyNotPurchased = errors.New("holder has no policy in purchased state")

	// ErrNotEligible is returned by payout when the verified condition did not
	// qualify, or no verification has been recorded.
	ErrNotEligible = errors.New("policy is not eligible for indemnity")

	// ErrAlreadyResolved is returned when an operation requires a purchased
	// policy but the policy has already reached a terminal status.
	ErrAlreadyResolved = errors.New("policy already resolved")

	// ErrInsufficientEscrow is returned when the escrow pool cannot cover an
	// indemnity. It should not occur under correct premium/indemnity sizing
	// but is checked before any funds move.
	ErrInsufficientEscrow = errors.New("escrow cannot cover indemnity")

	// ErrWeatherDataUnavailable means the weather source had no observation
	// for the requested city. Recoverable: the policy is left unresolved for a
	// later re-check.
	ErrWeatherDataUnavailable = errors.New("no weather data available")

	// ErrExternalService means the weather source failed. Recoverable and
	// retryable; never corrupts ledger state.
	ErrExternalService = errors.New("external weather service failure")
)
