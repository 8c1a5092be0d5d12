package token

import "errors"

var (
	// ErrInsufficientBalance indicates the sender holds less than the transfer amount.
	ErrInsufficientBalance = errors.New("ERC20: transfer amount exceeds balance")

	// ErrInsufficientAllowance indicates the spender's allowance is below the transfer amount.
	ErrInsufficientAllowance = errors.New("ERC20: transfer amount exceeds allowance")

	// ErrZeroAddress indicates a transfer to or from the zero address.
	ErrZeroAddress = errors.New("ERC20: zero address")

	// ErrNilAmount indicates a nil amount was passed where a value is required.
	ErrNilAmount = errors.New("token: nil amount")

	// ErrSupplyOverflow indicates a mint would overflow the 256-bit total supply.
	ErrSupplyOverflow = errors.New("ERC20: total supply overflow")

	// ErrUnknownToken indicates no ledger is registered for the token address.
	ErrUnknownToken = errors.New("token: unknown token")

	// ErrDuplicateToken indicates a ledger is already registered for the token address.
	ErrDuplicateToken = errors.New("token: token already registered")
)
