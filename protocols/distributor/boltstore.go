package distributor

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.etcd.io/bbolt"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
)

var (
	bucketMeta           = []byte("meta")
	bucketUserClaims     = []byte("user_claims")
	bucketPoolClaims     = []byte("pool_claims")
	bucketUsedSignatures = []byte("used_signatures")
	bucketPools          = []byte("pools")

	keyInitialized   = []byte("initialized")
	keyClaimIndex    = []byte("claim_index")
	keyClaimInterval = []byte("claim_interval")
)

// userClaimSize is amount(32) + lastClaimAt(8).
const userClaimSize = 40

// BoltStore persists the claim ledger and the pool arena in one bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface checks.
var (
	_ Store              = (*BoltStore)(nil)
	_ poolregistry.Store = (*BoltStore)(nil)
)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("distributor: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("distributor: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketUserClaims, bucketPoolClaims, bucketUsedSignatures, bucketPools} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("distributor: create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// View runs fn in a read-only bbolt transaction.
func (s *BoltStore) View(fn func(Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Update runs fn in a read-write bbolt transaction. bbolt rolls the
// transaction back when fn returns an error.
func (s *BoltStore) Update(fn func(Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// LoadPools returns the persisted pool arena ordered by pid.
func (s *BoltStore) LoadPools() ([]poolregistry.Pool, error) {
	var pools []poolregistry.Pool
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, v []byte) error {
			var p poolregistry.Pool
			if err := decodeGob(v, &p); err != nil {
				return fmt.Errorf("boltstore: decode pool: %w", err)
			}
			pools = append(pools, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

// PutPool stores or overwrites the pool record at its pid.
func (s *BoltStore) PutPool(pool poolregistry.Pool) error {
	data, err := encodeGob(pool)
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketPools).Put(uint64Key(pool.Pid), data); err != nil {
			return fmt.Errorf("boltstore: put pool: %w", err)
		}
		return nil
	})
}

// uint64Key encodes v as an 8-byte big-endian key for sorted storage.
func uint64Key(v uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, v)
	return k
}

func userClaimKey(pid uint64, user common.Address) []byte {
	k := make([]byte, 8+common.AddressLength)
	binary.BigEndian.PutUint64(k, pid)
	copy(k[8:], user[:])
	return k
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) getUint64(bucket, key []byte) (uint64, error) {
	v := t.tx.Bucket(bucket).Get(key)
	if v == nil {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: %s/%x", ErrCorruptRecord, bucket, key)
	}
	return binary.BigEndian.Uint64(v), nil
}

func (t *boltTx) putUint64(bucket, key []byte, value uint64) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	if err := t.tx.Bucket(bucket).Put(key, uint64Key(value)); err != nil {
		return fmt.Errorf("boltstore: put %s: %w", bucket, err)
	}
	return nil
}

func (t *boltTx) Initialized() (bool, error) {
	return t.tx.Bucket(bucketMeta).Get(keyInitialized) != nil, nil
}

func (t *boltTx) MarkInitialized() error {
	return t.putUint64(bucketMeta, keyInitialized, 1)
}

func (t *boltTx) ClaimIndex() (uint64, error) {
	return t.getUint64(bucketMeta, keyClaimIndex)
}

func (t *boltTx) SetClaimIndex(epoch uint64) error {
	return t.putUint64(bucketMeta, keyClaimIndex, epoch)
}

func (t *boltTx) ClaimInterval() (uint64, error) {
	return t.getUint64(bucketMeta, keyClaimInterval)
}

func (t *boltTx) SetClaimInterval(seconds uint64) error {
	return t.putUint64(bucketMeta, keyClaimInterval, seconds)
}

func (t *boltTx) UserClaim(pid uint64, user common.Address) (UserClaim, error) {
	v := t.tx.Bucket(bucketUserClaims).Get(userClaimKey(pid, user))
	if v == nil {
		return UserClaim{Claimed: new(uint256.Int)}, nil
	}
	if len(v) != userClaimSize {
		return UserClaim{}, fmt.Errorf("%w: user claim pid %d user %s", ErrCorruptRecord, pid, user.Hex())
	}
	return UserClaim{
		Claimed:     new(uint256.Int).SetBytes32(v[:32]),
		LastClaimAt: binary.BigEndian.Uint64(v[32:]),
	}, nil
}

func (t *boltTx) PutUserClaim(pid uint64, user common.Address, claim UserClaim) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	if claim.Claimed == nil {
		return ErrNilAmount
	}
	v := make([]byte, userClaimSize)
	amount := claim.Claimed.Bytes32()
	copy(v[:32], amount[:])
	binary.BigEndian.PutUint64(v[32:], claim.LastClaimAt)
	if err := t.tx.Bucket(bucketUserClaims).Put(userClaimKey(pid, user), v); err != nil {
		return fmt.Errorf("boltstore: put user claim: %w", err)
	}
	return nil
}

func (t *boltTx) PoolClaimed(pid uint64) (*uint256.Int, error) {
	v := t.tx.Bucket(bucketPoolClaims).Get(uint64Key(pid))
	if v == nil {
		return new(uint256.Int), nil
	}
	if len(v) != 32 {
		return nil, fmt.Errorf("%w: pool claim pid %d", ErrCorruptRecord, pid)
	}
	return new(uint256.Int).SetBytes32(v), nil
}

func (t *boltTx) PutPoolClaimed(pid uint64, amount *uint256.Int) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	if amount == nil {
		return ErrNilAmount
	}
	v := amount.Bytes32()
	if err := t.tx.Bucket(bucketPoolClaims).Put(uint64Key(pid), v[:]); err != nil {
		return fmt.Errorf("boltstore: put pool claim: %w", err)
	}
	return nil
}

func (t *boltTx) IsSignatureUsed(digest common.Hash) (bool, error) {
	return t.tx.Bucket(bucketUsedSignatures).Get(digest[:]) != nil, nil
}

func (t *boltTx) MarkSignatureUsed(digest common.Hash, at uint64) error {
	return t.putUint64(bucketUsedSignatures, digest[:], at)
}
