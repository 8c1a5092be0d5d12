package distributor

import "errors"

// Authorization errors.
var (
	// ErrUnauthorized indicates the caller lacks the capability the operation requires.
	ErrUnauthorized = errors.New("distributor: unauthorized")

	// ErrPaused indicates the system is halted by the role registry.
	ErrPaused = errors.New("distributor: paused")
)

// Validation errors. Resubmitting the same request always fails the same way.
var (
	// ErrInvalidPid indicates the claim targets a pid that was never registered.
	ErrInvalidPid = errors.New("distributor: invalid pid")

	// ErrUnmatchedRewardToken indicates the claimed token is not the pool's reward token.
	ErrUnmatchedRewardToken = errors.New("distributor: unmatched reward token")

	// ErrInvalidClaimIndex indicates the claim's epoch differs from the current epoch.
	ErrInvalidClaimIndex = errors.New("distributor: invalid claim index")

	// ErrInvalidInterval indicates the claim interval has not elapsed since the
	// beneficiary's previous claim on the pool.
	ErrInvalidInterval = errors.New("distributor: invalid interval")

	// ErrInvalidSigner indicates the signature is malformed or was not produced
	// by the maintainer.
	ErrInvalidSigner = errors.New("distributor: invalid signer")

	// ErrAlreadyUsedSignature indicates the claim authorization was already settled.
	ErrAlreadyUsedSignature = errors.New("distributor: already used signature")

	// ErrClaimIndexRegression indicates an attempt to move the epoch backwards.
	ErrClaimIndexRegression = errors.New("distributor: claim index must not decrease")

	// ErrNilAmount indicates a missing amount.
	ErrNilAmount = errors.New("distributor: nil amount")

	// ErrClaimedOverflow indicates a cumulative counter would exceed 2^256-1.
	ErrClaimedOverflow = errors.New("distributor: claimed total overflow")
)

// Store errors.
var (
	// ErrReadOnly indicates a write was attempted inside a View transaction.
	ErrReadOnly = errors.New("distributor: read-only transaction")

	// ErrCorruptRecord indicates a persisted ledger record has an unexpected size.
	ErrCorruptRecord = errors.New("distributor: corrupt ledger record")
)
