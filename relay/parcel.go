package relay

import (
	"fmt"
	"math/big"

	"github.com/ChainSafe/gossamer/lib/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AccountID is a Darwinia account identity (sr25519 public key).
type AccountID [32]byte

// ParseAccountID decodes a 0x-prefixed hex account id.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	bz, err := common.HexToBytes(s)
	if err != nil {
		return id, fmt.Errorf("decode account %q: %w", s, err)
	}
	if len(bz) != len(id) {
		return id, fmt.Errorf("account %q: expected %d bytes, got %d", s, len(id), len(bz))
	}
	copy(id[:], bz)
	return id, nil
}

func (a AccountID) String() string {
	return common.BytesToHex(a[:])
}

// EthereumHeader is the source chain header carried by a relay parcel.
type EthereumHeader struct {
	ParentHash       ethcommon.Hash
	Timestamp        uint64
	Number           uint64
	Author           ethcommon.Address
	TransactionsRoot ethcommon.Hash
	UnclesHash       ethcommon.Hash
	ExtraData        []byte
	StateRoot        ethcommon.Hash
	ReceiptsRoot     ethcommon.Hash
	LogBloom         types.Bloom
	GasUsed          *big.Int
	GasLimit         *big.Int
	Difficulty       *big.Int
	Seal             [][]byte
	Hash             *ethcommon.Hash
}

// Parcel is a header together with the MMR root it commits to.
type Parcel struct {
	Header  EthereumHeader
	MMRRoot ethcommon.Hash
}

var parcelCmpOptions = []cmp.Option{
	cmp.Comparer(func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return a.Cmp(b) == 0
	}),
	cmpopts.EquateEmpty(),
}

// IsSameAs reports whether every field of p matches other.
// nil and empty slices are equal; there is no other tolerance.
func (p Parcel) IsSameAs(other Parcel) bool {
	return cmp.Equal(p, other, parcelCmpOptions...)
}

// Diff returns a human readable description of the fields that differ
// between p (-) and other (+), or "" when they are the same.
func (p Parcel) Diff(other Parcel) string {
	return cmp.Diff(p, other, parcelCmpOptions...)
}
