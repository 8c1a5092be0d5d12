package poolregistry

import "errors"

var (
	// ErrUnauthorized indicates the caller does not hold the manager role.
	ErrUnauthorized = errors.New("poolregistry: not manager")

	// ErrDuplicatePool indicates an active pool already binds the same token pair.
	ErrDuplicatePool = errors.New("poolregistry: pool already exists")

	// ErrInvalidIndex indicates a pid outside [0, poolLength).
	ErrInvalidIndex = errors.New("poolregistry: invalid pool index")

	// ErrPoolNotFound indicates the address was never registered as a pool.
	ErrPoolNotFound = errors.New("poolregistry: invalid pool")

	// ErrZeroAddress indicates a zero token address was supplied.
	ErrZeroAddress = errors.New("poolregistry: zero token address")

	// ErrCorruptSnapshot indicates a restored pool list is not a contiguous arena.
	ErrCorruptSnapshot = errors.New("poolregistry: corrupt pool snapshot")
)
