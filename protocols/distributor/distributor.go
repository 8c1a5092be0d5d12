package distributor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
)

// DefaultClaimInterval is the minimum spacing between two claims by one
// beneficiary on one pool, in seconds.
const DefaultClaimInterval = 43200

// PoolReader resolves pids against the pool arena.
type PoolReader interface {
	PoolLength() uint64
	Pool(pid uint64) (poolregistry.Pool, error)
}

// TokenBank moves reward tokens between accounts.
type TokenBank interface {
	BalanceOf(token, account common.Address) (*uint256.Int, error)
	Transfer(token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error
}

// Authorizer resolves roles and the pause flag.
type Authorizer interface {
	IsManager(account common.Address) bool
	IsMaintainer(account common.Address) bool
	IsRewardDepositor(account common.Address) bool
	Paused() bool
}

// Config holds the configuration for the distributor.
type Config struct {
	// Address is the custody account holding deposited rewards.
	Address    common.Address
	Pools      PoolReader
	Tokens     TokenBank
	Authorizer Authorizer
	Store      Store
	Clock      clockwork.Clock
	Logger     *slog.Logger
	Metrics    *Metrics
	Feed       *events.Feed

	// ClaimInterval and ClaimIndex seed a fresh ledger. They are ignored when
	// the store already holds state.
	ClaimInterval uint64
	ClaimIndex    uint64
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.Authorizer == nil {
		return errors.New("config: Authorizer is required")
	}
	return nil
}

// ClaimRequest is a beneficiary's request to settle one signed authorization.
type ClaimRequest struct {
	Pid         uint64
	RewardToken common.Address
	Amount      *uint256.Int
	EpochIndex  uint64
	Signature   []byte
}

// Receipt describes a settled claim.
type Receipt struct {
	Pid         uint64         `json:"pid"`
	Beneficiary common.Address `json:"beneficiary"`
	RewardToken common.Address `json:"rewardToken"`
	Amount      *uint256.Int   `json:"amount"`
	EpochIndex  uint64         `json:"epochIndex"`
	Digest      common.Hash    `json:"digest"`
	ClaimedAt   uint64         `json:"claimedAt"`
}

// Deposited is emitted when rewards enter custody.
type Deposited struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	Amount *uint256.Int   `json:"amount"`
}

// ClaimIndexUpdated is emitted when the maintainer sets the epoch.
type ClaimIndexUpdated struct {
	Previous uint64 `json:"previous"`
	Current  uint64 `json:"current"`
}

// ClaimIntervalUpdated is emitted when the manager sets the claim interval.
type ClaimIntervalUpdated struct {
	Previous uint64 `json:"previous"`
	Current  uint64 `json:"current"`
}

// Distributor holds deposited reward tokens and pays them out against
// maintainer-signed claims.
//
// Every mutation is serialized and runs inside one store transaction. The
// token transfer is the last step of a claim, so a failed transfer leaves the
// ledger untouched.
type Distributor struct {
	mu sync.Mutex

	address common.Address
	pools   PoolReader
	tokens  TokenBank
	auth    Authorizer
	store   Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics
	feed    *events.Feed
}

// New creates a distributor. A fresh store is seeded with the configured claim
// interval and epoch.
func New(cfg Config) (*Distributor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		cfg.Store = NewMemStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Distributor{
		address: cfg.Address,
		pools:   cfg.Pools,
		tokens:  cfg.Tokens,
		auth:    cfg.Authorizer,
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		feed:    cfg.Feed,
	}

	var epoch uint64
	err := d.store.Update(func(tx Tx) error {
		ok, err := tx.Initialized()
		if err != nil {
			return err
		}
		if !ok {
			if err := tx.SetClaimInterval(cfg.ClaimInterval); err != nil {
				return err
			}
			if err := tx.SetClaimIndex(cfg.ClaimIndex); err != nil {
				return err
			}
			if err := tx.MarkInitialized(); err != nil {
				return err
			}
		}
		epoch, err = tx.ClaimIndex()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("distributor: initialize ledger: %w", err)
	}
	d.metrics.setClaimIndex(epoch)
	return d, nil
}

// Address returns the custody account.
func (d *Distributor) Address() common.Address {
	return d.address
}

func (d *Distributor) now() uint64 {
	return uint64(d.clock.Now().Unix())
}

// Deposit pulls amount of token from caller into custody. The caller must hold
// the reward-depositor role and must have approved the custody account.
// Token errors are returned unchanged.
func (d *Distributor) Deposit(caller, token common.Address, amount *uint256.Int) (err error) {
	defer func() { d.metrics.observeDeposit(token.Hex(), err) }()

	if d.auth.Paused() {
		return ErrPaused
	}
	if !d.auth.IsRewardDepositor(caller) {
		return fmt.Errorf("%w: not reward depositor", ErrUnauthorized)
	}
	if amount == nil {
		return ErrNilAmount
	}

	d.mu.Lock()
	err = d.tokens.TransferFrom(token, d.address, caller, d.address, amount)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.logger.Info("Rewards deposited", "token", token, "from", caller, "amount", amount)
	d.feed.Send(events.Deposited, Deposited{Token: token, From: caller, Amount: amount.Clone()}, d.clock.Now())
	return nil
}

// SetClaimInterval sets the minimum spacing between claims, in seconds.
func (d *Distributor) SetClaimInterval(caller common.Address, seconds uint64) error {
	if !d.auth.IsManager(caller) {
		return fmt.Errorf("%w: not manager", ErrUnauthorized)
	}

	d.mu.Lock()
	var previous uint64
	err := d.store.Update(func(tx Tx) error {
		var err error
		if previous, err = tx.ClaimInterval(); err != nil {
			return err
		}
		return tx.SetClaimInterval(seconds)
	})
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("distributor: set claim interval: %w", err)
	}

	d.logger.Info("Claim interval updated", "previous", previous, "current", seconds)
	d.feed.Send(events.ClaimIntervalUpdated, ClaimIntervalUpdated{Previous: previous, Current: seconds}, d.clock.Now())
	return nil
}

// SetClaimIndex opens epoch for claims. Setting the current epoch again is
// allowed; moving it backwards is not.
func (d *Distributor) SetClaimIndex(caller common.Address, epoch uint64) error {
	if !d.auth.IsMaintainer(caller) {
		return fmt.Errorf("%w: not maintainer", ErrUnauthorized)
	}

	d.mu.Lock()
	var previous uint64
	err := d.store.Update(func(tx Tx) error {
		var err error
		if previous, err = tx.ClaimIndex(); err != nil {
			return err
		}
		if epoch < previous {
			return fmt.Errorf("%w: %d < %d", ErrClaimIndexRegression, epoch, previous)
		}
		return tx.SetClaimIndex(epoch)
	})
	d.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrClaimIndexRegression) {
			return err
		}
		return fmt.Errorf("distributor: set claim index: %w", err)
	}

	d.metrics.setClaimIndex(epoch)
	d.logger.Info("Claim index updated", "previous", previous, "current", epoch)
	d.feed.Send(events.ClaimIndexUpdated, ClaimIndexUpdated{Previous: previous, Current: epoch}, d.clock.Now())
	return nil
}

// Claim settles req on behalf of caller, the beneficiary.
//
// Checks run in a fixed order and the first failure is returned: pause, pid,
// reward token, epoch, replay, interval, signer. A settled authorization is
// reported as used before its interval or signer is considered, so replaying
// it always fails with ErrAlreadyUsedSignature. On success the authorization
// is consumed, the tokens move from custody to caller and the claim counters
// advance, all or nothing.
func (d *Distributor) Claim(caller common.Address, req ClaimRequest) (receipt *Receipt, err error) {
	start := time.Now()
	defer func() {
		d.metrics.observeClaim(start, err)
		if err != nil {
			d.logger.Debug("Claim rejected", "pid", req.Pid, "beneficiary", caller, "error", err)
		}
	}()

	if d.auth.Paused() {
		return nil, ErrPaused
	}
	if req.Amount == nil {
		return nil, ErrNilAmount
	}
	if req.Pid >= d.pools.PoolLength() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPid, req.Pid)
	}
	pool, err := d.pools.Pool(req.Pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPid, err)
	}
	if pool.RewardToken != req.RewardToken {
		return nil, fmt.Errorf("%w: pool %d rewards %s", ErrUnmatchedRewardToken, req.Pid, pool.RewardToken.Hex())
	}

	msg := ClaimMessage{
		Beneficiary: caller,
		Pid:         req.Pid,
		RewardToken: req.RewardToken,
		Amount:      req.Amount,
		EpochIndex:  req.EpochIndex,
	}
	digest := msg.Digest()
	signer, signerErr := RecoverSigner(msg, req.Signature)

	d.mu.Lock()
	now := d.now()
	transferred := false
	err = d.store.Update(func(tx Tx) error {
		epoch, err := tx.ClaimIndex()
		if err != nil {
			return err
		}
		if req.EpochIndex != epoch {
			return fmt.Errorf("%w: got %d, current %d", ErrInvalidClaimIndex, req.EpochIndex, epoch)
		}

		used, err := tx.IsSignatureUsed(digest)
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyUsedSignature
		}

		user, err := tx.UserClaim(req.Pid, caller)
		if err != nil {
			return err
		}
		interval, err := tx.ClaimInterval()
		if err != nil {
			return err
		}
		if user.LastClaimAt != 0 && !intervalElapsed(user.LastClaimAt, interval, now) {
			return fmt.Errorf("%w: last claim at %d", ErrInvalidInterval, user.LastClaimAt)
		}

		if signerErr != nil {
			return signerErr
		}
		if !d.auth.IsMaintainer(signer) {
			return fmt.Errorf("%w: %s", ErrInvalidSigner, signer.Hex())
		}

		if err := tx.MarkSignatureUsed(digest, now); err != nil {
			return err
		}

		userTotal, overflow := new(uint256.Int).AddOverflow(user.Claimed, req.Amount)
		if overflow {
			return ErrClaimedOverflow
		}
		poolTotal, err := tx.PoolClaimed(req.Pid)
		if err != nil {
			return err
		}
		if _, overflow := poolTotal.AddOverflow(poolTotal, req.Amount); overflow {
			return ErrClaimedOverflow
		}
		if err := tx.PutUserClaim(req.Pid, caller, UserClaim{Claimed: userTotal, LastClaimAt: now}); err != nil {
			return err
		}
		if err := tx.PutPoolClaimed(req.Pid, poolTotal); err != nil {
			return err
		}

		if err := d.tokens.Transfer(req.RewardToken, d.address, caller, req.Amount); err != nil {
			return err
		}
		transferred = true
		return nil
	})
	if err != nil {
		if transferred {
			d.refund(caller, req, digest, err)
		}
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	receipt = &Receipt{
		Pid:         req.Pid,
		Beneficiary: caller,
		RewardToken: req.RewardToken,
		Amount:      req.Amount.Clone(),
		EpochIndex:  req.EpochIndex,
		Digest:      digest,
		ClaimedAt:   now,
	}
	d.logger.Info("Reward claimed",
		"pid", req.Pid,
		"beneficiary", caller,
		"amount", req.Amount,
		"epoch", req.EpochIndex,
		"digest", digest,
	)
	d.feed.Send(events.Claimed, *receipt, d.clock.Now())
	return receipt, nil
}

// refund returns tokens to custody when the ledger commit failed after the
// transfer already happened.
func (d *Distributor) refund(caller common.Address, req ClaimRequest, digest common.Hash, cause error) {
	d.logger.Error("Claim commit failed after transfer, refunding custody",
		"pid", req.Pid, "beneficiary", caller, "digest", digest, "error", cause)
	if err := d.tokens.Transfer(req.RewardToken, caller, d.address, req.Amount); err != nil {
		d.logger.Error("Refund failed, ledger and custody diverged",
			"pid", req.Pid, "beneficiary", caller, "amount", req.Amount, "error", err)
	}
}

func intervalElapsed(last, interval, now uint64) bool {
	next := last + interval
	if next < last {
		return false
	}
	return now >= next
}

// UserClaimedReward returns the cumulative amount user has claimed from pid.
func (d *Distributor) UserClaimedReward(pid uint64, user common.Address) (*uint256.Int, error) {
	var claimed *uint256.Int
	err := d.store.View(func(tx Tx) error {
		c, err := tx.UserClaim(pid, user)
		claimed = c.Claimed
		return err
	})
	return claimed, err
}

// UserLastClaimAt returns the unix time of user's last claim on pid, or 0.
func (d *Distributor) UserLastClaimAt(pid uint64, user common.Address) (uint64, error) {
	var at uint64
	err := d.store.View(func(tx Tx) error {
		c, err := tx.UserClaim(pid, user)
		at = c.LastClaimAt
		return err
	})
	return at, err
}

// PoolClaimedReward returns the cumulative amount claimed from pid.
func (d *Distributor) PoolClaimedReward(pid uint64) (*uint256.Int, error) {
	var claimed *uint256.Int
	err := d.store.View(func(tx Tx) error {
		var err error
		claimed, err = tx.PoolClaimed(pid)
		return err
	})
	return claimed, err
}

// ClaimInterval returns the claim interval in seconds.
func (d *Distributor) ClaimInterval() (uint64, error) {
	var v uint64
	err := d.store.View(func(tx Tx) error {
		var err error
		v, err = tx.ClaimInterval()
		return err
	})
	return v, err
}

// CurrentEpochIndex returns the epoch claims are accepted for.
func (d *Distributor) CurrentEpochIndex() (uint64, error) {
	var v uint64
	err := d.store.View(func(tx Tx) error {
		var err error
		v, err = tx.ClaimIndex()
		return err
	})
	return v, err
}

// IsSignatureUsed reports whether the authorization with digest was settled.
func (d *Distributor) IsSignatureUsed(digest common.Hash) (bool, error) {
	var used bool
	err := d.store.View(func(tx Tx) error {
		var err error
		used, err = tx.IsSignatureUsed(digest)
		return err
	})
	return used, err
}

// Balance returns the custody balance of token.
func (d *Distributor) Balance(token common.Address) (*uint256.Int, error) {
	return d.tokens.BalanceOf(token, d.address)
}
