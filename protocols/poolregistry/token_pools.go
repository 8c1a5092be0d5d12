package poolregistry

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolsRegistryView is an adjacency snapshot of which pools reference which
// tokens. Tokens are sorted by address; Pools[i] holds the pids, in ascending
// order, of every pool whose deposit or reward token is Tokens[i].
type TokenPoolsRegistryView struct {
	Tokens []common.Address `json:"tokens"`
	Pools  [][]uint64       `json:"pools"`
}

// TokenPools builds the token adjacency snapshot over the whole arena,
// deprecated pools included.
func (r *Registry) TokenPools() *TokenPoolsRegistryView {
	pools := r.AllPools()

	adjacency := make(map[common.Address][]uint64)
	for _, p := range pools {
		adjacency[p.DepositToken] = append(adjacency[p.DepositToken], p.Pid)
		if p.RewardToken != p.DepositToken {
			adjacency[p.RewardToken] = append(adjacency[p.RewardToken], p.Pid)
		}
	}

	view := &TokenPoolsRegistryView{
		Tokens: make([]common.Address, 0, len(adjacency)),
	}
	for token := range adjacency {
		view.Tokens = append(view.Tokens, token)
	}
	sort.Slice(view.Tokens, func(i, j int) bool {
		return bytes.Compare(view.Tokens[i][:], view.Tokens[j][:]) < 0
	})
	view.Pools = make([][]uint64, len(view.Tokens))
	for i, token := range view.Tokens {
		view.Pools[i] = adjacency[token]
	}
	return view
}

// PoolsByToken returns the pids of every pool that deposits or rewards token.
func (r *Registry) PoolsByToken(token common.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pids []uint64
	for _, p := range r.all {
		if p.DepositToken == token || p.RewardToken == token {
			pids = append(pids, p.Pid)
		}
	}
	return pids
}
