package poolregistry

import "github.com/ethereum/go-ethereum/common"

// Pool represents the data for a single registered pool.
type Pool struct {
	Pid          uint64         `json:"pid"`
	Key          PoolKey        `json:"key"`
	Address      common.Address `json:"address"`
	DepositToken common.Address `json:"depositToken"`
	RewardToken  common.Address `json:"rewardToken"`
	Deprecated   bool           `json:"deprecated"`
}

// PoolRegistryView represents the complete state of the registry.
type PoolRegistryView struct {
	Pools []Pool `json:"pools"`
}

// PoolAdded is emitted when a pool is appended to the registry.
type PoolAdded struct {
	Pid          uint64         `json:"pid"`
	Address      common.Address `json:"address"`
	DepositToken common.Address `json:"depositToken"`
	RewardToken  common.Address `json:"rewardToken"`
}

// PoolRemoved is emitted when a pool is deprecated.
type PoolRemoved struct {
	Pid     uint64         `json:"pid"`
	Address common.Address `json:"address"`
}
