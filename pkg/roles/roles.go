// Package roles holds the address/role registry consulted by the pool registry,
// the reward distributor and the reward oracle.
//
// The registry is owner-administered: the owner assigns the manager, maintainer,
// reward depositor and stats submitter accounts and toggles the global pause flag.
// Consumers never depend on *Registry directly; they accept the narrow
// capability interfaces declared in their own packages.
package roles

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotOwner indicates the caller is not the registry owner.
	ErrNotOwner = errors.New("roles: caller is not the owner")

	// ErrZeroAddress indicates a role was assigned to the zero address.
	ErrZeroAddress = errors.New("roles: zero address")
)

// Role names a capability slot in the registry.
type Role string

const (
	Manager              Role = "manager"
	Maintainer           Role = "maintainer"
	RewardDepositor      Role = "reward_depositor"
	RewardStatsSubmitter Role = "reward_stats_submitter"
)

// Registry is a thread-safe role registry.
type Registry struct {
	mu     sync.RWMutex
	owner  common.Address
	roles  map[Role]common.Address
	paused bool
}

// New creates a registry owned by owner. The owner is also the initial manager.
func New(owner common.Address) (*Registry, error) {
	if owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return &Registry{
		owner: owner,
		roles: map[Role]common.Address{Manager: owner},
	}, nil
}

// Owner returns the registry owner.
func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// Set assigns role to account. Only the owner may call it.
func (r *Registry) Set(caller common.Address, role Role, account common.Address) error {
	if account == (common.Address{}) {
		return ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	r.roles[role] = account
	return nil
}

func (r *Registry) SetManager(caller, account common.Address) error {
	return r.Set(caller, Manager, account)
}

func (r *Registry) SetMaintainer(caller, account common.Address) error {
	return r.Set(caller, Maintainer, account)
}

func (r *Registry) SetRewardDepositor(caller, account common.Address) error {
	return r.Set(caller, RewardDepositor, account)
}

func (r *Registry) SetRewardStatsSubmitter(caller, account common.Address) error {
	return r.Set(caller, RewardStatsSubmitter, account)
}

// Get returns the account holding role, if any.
func (r *Registry) Get(role Role) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.roles[role]
	return a, ok
}

// Has reports whether account currently holds role.
func (r *Registry) Has(role Role, account common.Address) bool {
	a, ok := r.Get(role)
	return ok && a == account
}

func (r *Registry) IsManager(account common.Address) bool {
	return r.Has(Manager, account)
}

func (r *Registry) IsMaintainer(account common.Address) bool {
	return r.Has(Maintainer, account)
}

func (r *Registry) IsRewardDepositor(account common.Address) bool {
	return r.Has(RewardDepositor, account)
}

func (r *Registry) IsRewardStatsSubmitter(account common.Address) bool {
	return r.Has(RewardStatsSubmitter, account)
}

// Pause halts claims and deposits until Unpause is called.
func (r *Registry) Pause(caller common.Address) error {
	return r.setPaused(caller, true)
}

// Unpause clears the pause flag.
func (r *Registry) Unpause(caller common.Address) error {
	return r.setPaused(caller, false)
}

func (r *Registry) setPaused(caller common.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrNotOwner
	}
	r.paused = paused
	return nil
}

// Paused reports the global pause flag.
func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}
