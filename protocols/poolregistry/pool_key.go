package poolregistry

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// --- PoolKey Implementation ---

// PoolKey is the 32-byte identity word of a registered pool.
//
// Motivation:
// Off-chain signers embed the integer pid in claim messages, while wallets and
// explorers expect a 20-byte address per pool. PoolKey binds both: it is derived
// from the pool's token pair and its pid, so it is unique per registration and
// never changes once the pool exists.
//
// Derivation:
//
//	key = keccak256(depositToken[20] || rewardToken[20] || uint256(pid)[32])
//
// The pool address is the low 20 bytes of the key, as with CREATE2 addresses.
type PoolKey [32]byte

// DerivePoolKey computes the key of the pool registered with the given tokens at pid.
func DerivePoolKey(depositToken, rewardToken common.Address, pid uint64) PoolKey {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], pid)
	return PoolKey(crypto.Keccak256Hash(depositToken[:], rewardToken[:], word[:]))
}

// Bytes returns the raw underlying byte slice.
// Output: A 32-byte slice.
func (p PoolKey) Bytes() []byte {
	return p[:]
}

// String returns the hex string representation of the key.
// Output: A standard hex string starting with "0x".
func (p PoolKey) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// Address returns the pool address carried in the low 20 bytes of the key.
func (p PoolKey) Address() common.Address {
	return common.BytesToAddress(p[12:])
}

// MarshalJSON serializes the key as a hex string.
func (p PoolKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses a hex string into the key.
//
// Input:
//   - Hex string of exactly 32 bytes
//   - Optional "0x" prefix
//
// Keys are hashes, so shorter inputs are rejected rather than padded.
func (p *PoolKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(s, "0x")

	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(p) {
		return errors.New("pool key must be 32 bytes")
	}

	copy(p[:], b)
	return nil
}
