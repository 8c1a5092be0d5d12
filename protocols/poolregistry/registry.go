package poolregistry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
)

// Authorizer resolves the manager capability.
type Authorizer interface {
	IsManager(account common.Address) bool
}

// Store persists registry mutations. PutPool is called with the full pool
// record on every append and on every deprecation.
type Store interface {
	LoadPools() ([]Pool, error)
	PutPool(pool Pool) error
}

// Config holds the configuration for the registry.
type Config struct {
	Authorizer Authorizer
	Store      Store
	Logger     *slog.Logger
	Feed       *events.Feed
	Clock      clockwork.Clock
}

func (c *Config) validate() error {
	if c.Authorizer == nil {
		return errors.New("config: Authorizer is required")
	}
	return nil
}

type tokenPair struct {
	deposit common.Address
	reward  common.Address
}

// Registry is an append-only arena of pools addressed by pid.
//
// A pid is the pool's position in the arena. Pools are never removed; RemovePool
// only flips the Deprecated flag, so every pid embedded in a signed claim stays
// resolvable forever.
type Registry struct {
	mu sync.RWMutex

	all       []Pool
	byAddress map[common.Address]uint64
	active    map[tokenPair]uint64

	auth   Authorizer
	store  Store
	logger *slog.Logger
	feed   *events.Feed
	clock  clockwork.Clock
}

// NewRegistry creates a registry and, if a store is configured, restores the
// persisted arena from it.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	r := &Registry{
		byAddress: make(map[common.Address]uint64),
		active:    make(map[tokenPair]uint64),
		auth:      cfg.Authorizer,
		store:     cfg.Store,
		logger:    cfg.Logger,
		feed:      cfg.Feed,
		clock:     cfg.Clock,
	}

	if r.store != nil {
		pools, err := r.store.LoadPools()
		if err != nil {
			return nil, fmt.Errorf("poolregistry: load pools: %w", err)
		}
		if err := r.restore(pools); err != nil {
			return nil, err
		}
		if len(pools) > 0 {
			r.logger.Info("Restored pool registry", "pools", len(pools))
		}
	}
	return r, nil
}

func (r *Registry) restore(pools []Pool) error {
	for i, p := range pools {
		if p.Pid != uint64(i) || p.Key != DerivePoolKey(p.DepositToken, p.RewardToken, p.Pid) {
			return fmt.Errorf("%w: entry %d", ErrCorruptSnapshot, i)
		}
		p.Address = p.Key.Address()
		r.index(p)
	}
	return nil
}

func (r *Registry) index(p Pool) {
	r.all = append(r.all, p)
	r.byAddress[p.Address] = p.Pid
	if !p.Deprecated {
		r.active[tokenPair{p.DepositToken, p.RewardToken}] = p.Pid
	}
}

// AddPool appends a pool binding depositToken to rewardToken and returns its pid.
// Only one non-deprecated pool may bind a given token pair.
func (r *Registry) AddPool(caller, depositToken, rewardToken common.Address) (uint64, error) {
	if !r.auth.IsManager(caller) {
		return 0, ErrUnauthorized
	}
	if depositToken == (common.Address{}) || rewardToken == (common.Address{}) {
		return 0, ErrZeroAddress
	}

	r.mu.Lock()
	pair := tokenPair{depositToken, rewardToken}
	if pid, exists := r.active[pair]; exists {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: pid %d", ErrDuplicatePool, pid)
	}

	pid := uint64(len(r.all))
	key := DerivePoolKey(depositToken, rewardToken, pid)
	pool := Pool{
		Pid:          pid,
		Key:          key,
		Address:      key.Address(),
		DepositToken: depositToken,
		RewardToken:  rewardToken,
	}
	if r.store != nil {
		if err := r.store.PutPool(pool); err != nil {
			r.mu.Unlock()
			return 0, fmt.Errorf("poolregistry: persist pool: %w", err)
		}
	}
	r.index(pool)
	r.mu.Unlock()

	r.logger.Info("Pool added",
		"pid", pid,
		"address", pool.Address,
		"deposit_token", depositToken,
		"reward_token", rewardToken,
	)
	r.feed.Send(events.PoolAdded, PoolAdded{
		Pid:          pid,
		Address:      pool.Address,
		DepositToken: depositToken,
		RewardToken:  rewardToken,
	}, r.clock.Now())
	return pid, nil
}

// RemovePool deprecates the pool at pid. The pool keeps its pid, address and
// position; the token pair becomes free for a new registration. Removing an
// already deprecated pool is a no-op.
func (r *Registry) RemovePool(caller common.Address, pid uint64) error {
	if !r.auth.IsManager(caller) {
		return ErrUnauthorized
	}

	r.mu.Lock()
	if pid >= uint64(len(r.all)) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidIndex, pid)
	}
	pool := r.all[pid]
	if pool.Deprecated {
		r.mu.Unlock()
		r.logger.Debug("Pool already deprecated", "pid", pid)
		return nil
	}

	pool.Deprecated = true
	if r.store != nil {
		if err := r.store.PutPool(pool); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("poolregistry: persist pool: %w", err)
		}
	}
	r.all[pid] = pool
	delete(r.active, tokenPair{pool.DepositToken, pool.RewardToken})
	r.mu.Unlock()

	r.logger.Info("Pool deprecated", "pid", pid, "address", pool.Address)
	r.feed.Send(events.PoolRemoved, PoolRemoved{Pid: pid, Address: pool.Address}, r.clock.Now())
	return nil
}

// Pool retrieves a pool by pid.
func (r *Registry) Pool(pid uint64) (Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pid >= uint64(len(r.all)) {
		return Pool{}, fmt.Errorf("%w: %d", ErrInvalidIndex, pid)
	}
	return r.all[pid], nil
}

// GetByAddress retrieves a pool by its address.
func (r *Registry) GetByAddress(address common.Address) (Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.byAddress[address]
	if !ok {
		return Pool{}, false
	}
	return r.all[pid], true
}

// IsPool reports whether address was ever registered, deprecated pools included.
func (r *Registry) IsPool(address common.Address) bool {
	_, ok := r.GetByAddress(address)
	return ok
}

// PoolIndex returns the pid of the pool at address.
func (r *Registry) PoolIndex(address common.Address) (uint64, error) {
	p, ok := r.GetByAddress(address)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPoolNotFound, address.Hex())
	}
	return p.Pid, nil
}

// IsDeprecatedPool reports whether the pool at address has been deprecated.
// Unknown addresses report false.
func (r *Registry) IsDeprecatedPool(address common.Address) bool {
	p, ok := r.GetByAddress(address)
	return ok && p.Deprecated
}

// AllPools returns a defensive copy of the full ordered arena.
func (r *Registry) AllPools() []Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	allCopy := make([]Pool, len(r.all))
	copy(allCopy, r.all)
	return allCopy
}

// PoolLength returns the number of pools ever registered.
func (r *Registry) PoolLength() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.all))
}

// View returns a snapshot of the registry.
func (r *Registry) View() PoolRegistryView {
	return PoolRegistryView{Pools: r.AllPools()}
}
