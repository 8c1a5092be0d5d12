package distributor

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ClaimMessageSize is the length of a packed claim message:
// beneficiary(20) + pid(32) + rewardToken(20) + amount(32) + epochIndex(32).
const ClaimMessageSize = 136

// SignatureSize is the length of an R || S || V secp256k1 signature.
const SignatureSize = crypto.SignatureLength

// ClaimMessage is the payload the maintainer signs to authorize one transfer.
type ClaimMessage struct {
	Beneficiary common.Address
	Pid         uint64
	RewardToken common.Address
	Amount      *uint256.Int
	EpochIndex  uint64
}

// Pack returns the tight big-endian concatenation of the message fields, the
// same bytes Solidity's abi.encodePacked(address,uint256,address,uint256,uint256)
// produces.
func (m ClaimMessage) Pack() []byte {
	buf := make([]byte, ClaimMessageSize)
	copy(buf[0:20], m.Beneficiary[:])
	binary.BigEndian.PutUint64(buf[44:52], m.Pid)
	copy(buf[52:72], m.RewardToken[:])
	if m.Amount != nil {
		amount := m.Amount.Bytes32()
		copy(buf[72:104], amount[:])
	}
	binary.BigEndian.PutUint64(buf[128:136], m.EpochIndex)
	return buf
}

// Hash returns keccak256 of the packed message.
func (m ClaimMessage) Hash() common.Hash {
	return crypto.Keccak256Hash(m.Pack())
}

// Digest returns the hash actually signed: the message hash wrapped in the
// "\x19Ethereum Signed Message:\n32" prefix. It is also the replay key.
func (m ClaimMessage) Digest() common.Hash {
	h := m.Hash()
	return common.BytesToHash(accounts.TextHash(h[:]))
}

// SignClaim signs msg with key and returns a 65-byte R || S || V signature with
// V in {27, 28}, the form wallets produce for personal messages.
func SignClaim(key *ecdsa.PrivateKey, msg ClaimMessage) ([]byte, error) {
	digest := msg.Digest()
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("distributor: sign claim: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the account that produced sig over msg. V may be given
// as 0/1 or 27/28.
func RecoverSigner(msg ClaimMessage, sig []byte) (common.Address, error) {
	if len(sig) != SignatureSize {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSigner, SignatureSize, len(sig))
	}

	normalized := make([]byte, SignatureSize)
	copy(normalized, sig)
	if v := normalized[crypto.RecoveryIDOffset]; v >= 27 {
		normalized[crypto.RecoveryIDOffset] = v - 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id %d", ErrInvalidSigner, sig[crypto.RecoveryIDOffset])
	}

	digest := msg.Digest()
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSigner, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
