package darwinia

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/darwinia-network/bridger-guard/relay"
)

// SCALE layouts of the EthereumRelay storage values. Field order matters.

type scaleEthereumHeader struct {
	ParentHash       [32]byte
	Timestamp        uint64
	Number           uint64
	Author           [20]byte
	TransactionsRoot [32]byte
	UnclesHash       [32]byte
	ExtraData        []byte
	StateRoot        [32]byte
	ReceiptsRoot     [32]byte
	LogBloom         [256]byte
	GasUsed          [32]byte // U256, little endian
	GasLimit         [32]byte
	Difficulty       [32]byte
	Seal             [][]byte
	Hash             *[32]byte
}

type scaleParcel struct {
	Header  scaleEthereumHeader
	MMRRoot [32]byte
}

type scaleVotingState struct {
	Ayes [][32]byte
	Nays [][32]byte
}

type scalePendingParcel struct {
	SubmittedAt uint32
	Parcel      scaleParcel
	VotingState scaleVotingState
}

func (p scalePendingParcel) toRelay() relay.PendingParcel {
	return relay.PendingParcel{
		SubmittedAt: p.SubmittedAt,
		Parcel:      p.Parcel.toRelay(),
		VotingState: relay.VotingState{
			Ayes: toAccounts(p.VotingState.Ayes),
			Nays: toAccounts(p.VotingState.Nays),
		},
	}
}

func (p scaleParcel) toRelay() relay.Parcel {
	h := p.Header
	header := relay.EthereumHeader{
		ParentHash:       h.ParentHash,
		Timestamp:        h.Timestamp,
		Number:           h.Number,
		Author:           h.Author,
		TransactionsRoot: h.TransactionsRoot,
		UnclesHash:       h.UnclesHash,
		ExtraData:        h.ExtraData,
		StateRoot:        h.StateRoot,
		ReceiptsRoot:     h.ReceiptsRoot,
		LogBloom:         h.LogBloom,
		GasUsed:          u256ToBig(h.GasUsed),
		GasLimit:         u256ToBig(h.GasLimit),
		Difficulty:       u256ToBig(h.Difficulty),
		Seal:             h.Seal,
	}
	if h.Hash != nil {
		hash := ethcommon.Hash(*h.Hash)
		header.Hash = &hash
	}
	return relay.Parcel{Header: header, MMRRoot: p.MMRRoot}
}

func toAccounts(ids [][32]byte) []relay.AccountID {
	accounts := make([]relay.AccountID, len(ids))
	for i, id := range ids {
		accounts[i] = id
	}
	return accounts
}

func u256ToBig(le [32]byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
