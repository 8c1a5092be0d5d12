package distributor

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// UserClaim is a beneficiary's per-pool claim record.
type UserClaim struct {
	// Claimed is the cumulative amount paid out. Never nil when returned by a Tx.
	Claimed *uint256.Int
	// LastClaimAt is the unix time of the last successful claim; 0 means never.
	LastClaimAt uint64
}

// Tx is the ledger as seen from inside one Store transaction.
type Tx interface {
	Initialized() (bool, error)
	MarkInitialized() error

	ClaimIndex() (uint64, error)
	SetClaimIndex(epoch uint64) error
	ClaimInterval() (uint64, error)
	SetClaimInterval(seconds uint64) error

	UserClaim(pid uint64, user common.Address) (UserClaim, error)
	PutUserClaim(pid uint64, user common.Address, claim UserClaim) error
	PoolClaimed(pid uint64) (*uint256.Int, error)
	PutPoolClaimed(pid uint64, amount *uint256.Int) error

	IsSignatureUsed(digest common.Hash) (bool, error)
	MarkSignatureUsed(digest common.Hash, at uint64) error
}

// Store runs ledger transactions. Update commits only when fn returns nil;
// any error discards every write fn made.
type Store interface {
	View(fn func(Tx) error) error
	Update(fn func(Tx) error) error
	Close() error
}

type userKey struct {
	pid  uint64
	user common.Address
}

type memState struct {
	initialized   bool
	claimIndex    uint64
	claimInterval uint64
	users         map[userKey]UserClaim
	pools         map[uint64]*uint256.Int
	used          mapset.Set[common.Hash]
}

// MemStore is an in-memory Store. Writes inside Update are journaled and only
// applied when the transaction function succeeds.
type MemStore struct {
	mu    sync.RWMutex
	state memState
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory ledger.
func NewMemStore() *MemStore {
	return &MemStore{state: memState{
		users: make(map[userKey]UserClaim),
		pools: make(map[uint64]*uint256.Int),
		used:  mapset.NewThreadUnsafeSet[common.Hash](),
	}}
}

// View runs fn against a read-only snapshot.
func (s *MemStore) View(fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{base: &s.state})
}

// Update runs fn in a writable transaction.
func (s *MemStore) Update(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		base:     &s.state,
		writable: true,
		users:    make(map[userKey]UserClaim),
		pools:    make(map[uint64]*uint256.Int),
		used:     mapset.NewThreadUnsafeSet[common.Hash](),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

// memTx overlays pending writes on the committed state.
type memTx struct {
	base     *memState
	writable bool

	initialized   bool
	claimIndex    *uint64
	claimInterval *uint64
	users         map[userKey]UserClaim
	pools         map[uint64]*uint256.Int
	used          mapset.Set[common.Hash]
}

func (tx *memTx) commit() {
	if tx.initialized {
		tx.base.initialized = true
	}
	if tx.claimIndex != nil {
		tx.base.claimIndex = *tx.claimIndex
	}
	if tx.claimInterval != nil {
		tx.base.claimInterval = *tx.claimInterval
	}
	for k, v := range tx.users {
		tx.base.users[k] = v
	}
	for k, v := range tx.pools {
		tx.base.pools[k] = v
	}
	tx.base.used.Append(tx.used.ToSlice()...)
}

func (tx *memTx) Initialized() (bool, error) {
	return tx.base.initialized || tx.initialized, nil
}

func (tx *memTx) MarkInitialized() error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.initialized = true
	return nil
}

func (tx *memTx) ClaimIndex() (uint64, error) {
	if tx.claimIndex != nil {
		return *tx.claimIndex, nil
	}
	return tx.base.claimIndex, nil
}

func (tx *memTx) SetClaimIndex(epoch uint64) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.claimIndex = &epoch
	return nil
}

func (tx *memTx) ClaimInterval() (uint64, error) {
	if tx.claimInterval != nil {
		return *tx.claimInterval, nil
	}
	return tx.base.claimInterval, nil
}

func (tx *memTx) SetClaimInterval(seconds uint64) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.claimInterval = &seconds
	return nil
}

func (tx *memTx) UserClaim(pid uint64, user common.Address) (UserClaim, error) {
	k := userKey{pid, user}
	c, ok := tx.users[k]
	if !ok {
		c, ok = tx.base.users[k]
	}
	if !ok {
		return UserClaim{Claimed: new(uint256.Int)}, nil
	}
	return UserClaim{Claimed: c.Claimed.Clone(), LastClaimAt: c.LastClaimAt}, nil
}

func (tx *memTx) PutUserClaim(pid uint64, user common.Address, claim UserClaim) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if claim.Claimed == nil {
		return ErrNilAmount
	}
	tx.users[userKey{pid, user}] = UserClaim{Claimed: claim.Claimed.Clone(), LastClaimAt: claim.LastClaimAt}
	return nil
}

func (tx *memTx) PoolClaimed(pid uint64) (*uint256.Int, error) {
	v, ok := tx.pools[pid]
	if !ok {
		v, ok = tx.base.pools[pid]
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return v.Clone(), nil
}

func (tx *memTx) PutPoolClaimed(pid uint64, amount *uint256.Int) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if amount == nil {
		return ErrNilAmount
	}
	tx.pools[pid] = amount.Clone()
	return nil
}

func (tx *memTx) IsSignatureUsed(digest common.Hash) (bool, error) {
	if tx.used != nil && tx.used.Contains(digest) {
		return true, nil
	}
	return tx.base.used.Contains(digest), nil
}

func (tx *memTx) MarkSignatureUsed(digest common.Hash, _ uint64) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.used.Add(digest)
	return nil
}
