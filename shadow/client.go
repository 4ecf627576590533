package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-resty/resty/v2"

	"github.com/darwinia-network/bridger-guard/relay"
)

// Client fetches parcels that the shadow service rebuilds from ethereum.
type Client struct {
	conn *resty.Client
}

type headerJSON struct {
	ParentHash       ethcommon.Hash    `json:"parent_hash"`
	Timestamp        uint64            `json:"timestamp"`
	Number           uint64            `json:"number"`
	Author           ethcommon.Address `json:"author"`
	TransactionsRoot ethcommon.Hash    `json:"transactions_root"`
	UnclesHash       ethcommon.Hash    `json:"uncles_hash"`
	ExtraData        hexutil.Bytes     `json:"extra_data"`
	StateRoot        ethcommon.Hash    `json:"state_root"`
	ReceiptsRoot     ethcommon.Hash    `json:"receipts_root"`
	LogBloom         types.Bloom       `json:"log_bloom"`
	GasUsed          *hexutil.Big      `json:"gas_used"`
	GasLimit         *hexutil.Big      `json:"gas_limit"`
	Difficulty       *hexutil.Big      `json:"difficulty"`
	Seal             []hexutil.Bytes   `json:"seal"`
	Hash             *ethcommon.Hash   `json:"hash"`
}

type parcelJSON struct {
	Header  headerJSON     `json:"header"`
	MMRRoot ethcommon.Hash `json:"mmr_root"`
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	conn := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{conn: conn}
}

// Parcel returns the parcel of ethereum block number. A parcel the shadow
// cannot provide yet is reported as a business error.
func (c *Client) Parcel(ctx context.Context, number uint64) (relay.Parcel, error) {
	var result parcelJSON
	resp, err := c.conn.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetPathParam("number", strconv.FormatUint(number, 10)).
		SetResult(&result).
		Get("/ethereum/parcel/{number}")
	if err != nil {
		return relay.Parcel{}, fmt.Errorf("get parcel %d: %w", number, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return relay.Parcel{}, relay.NewBizError("shadow: parcel %d not available", number)
	}
	if resp.IsError() {
		return relay.Parcel{}, fmt.Errorf("get parcel %d: http code %d: %s", number, resp.StatusCode(), resp.String())
	}
	if result.Header.Number != number {
		return relay.Parcel{}, relay.NewBizError("shadow: asked parcel %d, got %d", number, result.Header.Number)
	}
	return result.toRelay(), nil
}

func (p parcelJSON) toRelay() relay.Parcel {
	h := p.Header
	seal := make([][]byte, len(h.Seal))
	for i, s := range h.Seal {
		seal[i] = s
	}
	return relay.Parcel{
		Header: relay.EthereumHeader{
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
			GasUsed:          h.GasUsed.ToInt(),
			GasLimit:         h.GasLimit.ToInt(),
			Difficulty:       h.Difficulty.ToInt(),
			Seal:             seal,
			Hash:             h.Hash,
		},
		MMRRoot: p.MMRRoot,
	}
}

// MarshalParcel renders a parcel in the shadow JSON format.
func MarshalParcel(p relay.Parcel) ([]byte, error) {
	h := p.Header
	seal := make([]hexutil.Bytes, len(h.Seal))
	for i, s := range h.Seal {
		seal[i] = s
	}
	out := parcelJSON{
		Header: headerJSON{
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
			GasUsed:          (*hexutil.Big)(h.GasUsed),
			GasLimit:         (*hexutil.Big)(h.GasLimit),
			Difficulty:       (*hexutil.Big)(h.Difficulty),
			Seal:             seal,
			Hash:             h.Hash,
		},
		MMRRoot: p.MMRRoot,
	}
	return json.MarshalIndent(out, "", "  ")
}
