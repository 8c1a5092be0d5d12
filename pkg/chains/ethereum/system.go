package ethereum

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/roles"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/oracle"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
)

// Store persists both the pool arena and the claim ledger.
type Store interface {
	distributor.Store
	poolregistry.Store
}

// SystemConfig holds everything needed to assemble a rewards system.
type SystemConfig struct {
	Owner   common.Address
	Custody common.Address
	Tokens  []token.TokenView

	// Store is optional; without it the system runs fully in memory.
	Store Store

	// ClaimInterval and ClaimIndex seed a fresh ledger. A zero ClaimInterval
	// means distributor.DefaultClaimInterval.
	ClaimInterval uint64
	ClaimIndex    uint64

	Logger   *slog.Logger
	Registry prometheus.Registerer
	Clock    clockwork.Clock
}

func (c *SystemConfig) validate() error {
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner is required")
	}
	if c.Custody == (common.Address{}) {
		return errors.New("config: Custody is required")
	}
	return nil
}

// System is a unified facade over the components of one rewards deployment.
//
// Roles gate every privileged call. Pools and Distributor share the store, so a
// restart restores the arena and the ledger together. All components publish
// to Feed.
type System struct {
	Roles       *roles.Registry
	Tokens      *token.Bank
	Pools       *poolregistry.Registry
	Distributor *distributor.Distributor
	Oracle      *oracle.Oracle
	Feed        *events.Feed
}

// NewSystem wires a rewards system.
func NewSystem(cfg SystemConfig) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ClaimInterval == 0 {
		cfg.ClaimInterval = distributor.DefaultClaimInterval
	}

	rr, err := roles.New(cfg.Owner)
	if err != nil {
		return nil, err
	}
	bank, err := token.NewBank(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("ethereum: register tokens: %w", err)
	}
	feed := events.NewFeed()

	poolCfg := poolregistry.Config{
		Authorizer: rr,
		Logger:     cfg.Logger.With("component", "poolregistry"),
		Feed:       feed,
		Clock:      cfg.Clock,
	}
	distCfg := distributor.Config{
		Address:       cfg.Custody,
		Tokens:        bank,
		Authorizer:    rr,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger.With("component", "distributor"),
		Feed:          feed,
		ClaimInterval: cfg.ClaimInterval,
		ClaimIndex:    cfg.ClaimIndex,
	}
	if cfg.Store != nil {
		poolCfg.Store = cfg.Store
		distCfg.Store = cfg.Store
	}
	if cfg.Registry != nil {
		distCfg.Metrics = distributor.NewMetrics(cfg.Registry)
	}

	pools, err := poolregistry.NewRegistry(poolCfg)
	if err != nil {
		return nil, err
	}
	distCfg.Pools = pools
	dist, err := distributor.New(distCfg)
	if err != nil {
		return nil, err
	}
	orc, err := oracle.New(oracle.Config{
		Authorizer: rr,
		Pools:      pools,
		Logger:     cfg.Logger.With("component", "oracle"),
		Feed:       feed,
		Clock:      cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	return &System{
		Roles:       rr,
		Tokens:      bank,
		Pools:       pools,
		Distributor: dist,
		Oracle:      orc,
		Feed:        feed,
	}, nil
}

// DecodeEventJSON decodes the payload of an event of the given kind into its
// concrete type.
func DecodeEventJSON(kind events.Kind, data json.RawMessage) (any, error) {
	switch kind {
	case events.PoolAdded:
		return decode[poolregistry.PoolAdded](data)
	case events.PoolRemoved:
		return decode[poolregistry.PoolRemoved](data)
	case events.Deposited:
		return decode[distributor.Deposited](data)
	case events.Claimed:
		return decode[distributor.Receipt](data)
	case events.ClaimIndexUpdated:
		return decode[distributor.ClaimIndexUpdated](data)
	case events.ClaimIntervalUpdated:
		return decode[distributor.ClaimIntervalUpdated](data)
	case events.RewardStatsUpdated:
		return decode[oracle.RewardStatsUpdated](data)
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func decode[T any](data json.RawMessage) (any, error) {
	var typedData T
	if err := json.Unmarshal(data, &typedData); err != nil {
		return nil, err
	}
	return typedData, nil
}
