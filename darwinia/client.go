package darwinia

import (
	"context"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/darwinia-network/bridger-guard/relay"
)

const (
	ModuleEthereumRelay      = "EthereumRelay"
	ModuleTechnicalCommittee = "TechnicalCommittee"

	StorageConfirmedBlockNumbers     = "ConfirmedBlockNumbers"
	StoragePendingRelayHeaderParcels = "PendingRelayHeaderParcels"
	StorageMembers                   = "Members"
)

// Client reads the ethereum relay state of a Darwinia node.
type Client struct {
	endpoint string
	conn     *rpc.Client
}

// Dial connects to a Darwinia node over HTTP or WebSocket.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	conn, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &Client{endpoint: endpoint, conn: conn}, nil
}

func (c *Client) Close() {
	c.conn.Close()
}

// CheckConnection returns the chain name reported by the node.
func (c *Client) CheckConnection(ctx context.Context) (string, error) {
	var chain string
	err := c.conn.CallContext(ctx, &chain, "system_chain")
	if err != nil {
		return "", fmt.Errorf("call system_chain: %w", err)
	}
	return chain, nil
}

// LastConfirmed returns the highest confirmed ethereum block, 0 if none.
func (c *Client) LastConfirmed(ctx context.Context) (uint64, error) {
	var confirmed []uint64
	_, err := c.storage(ctx, ModuleEthereumRelay, StorageConfirmedBlockNumbers, &confirmed)
	if err != nil {
		return 0, err
	}
	var last uint64
	for _, n := range confirmed {
		if n > last {
			last = n
		}
	}
	return last, nil
}

// PendingHeaders returns the parcels awaiting confirmation in on-chain order.
func (c *Client) PendingHeaders(ctx context.Context) ([]relay.PendingParcel, error) {
	var raw []scalePendingParcel
	_, err := c.storage(ctx, ModuleEthereumRelay, StoragePendingRelayHeaderParcels, &raw)
	if err != nil {
		return nil, err
	}
	pending := make([]relay.PendingParcel, 0, len(raw))
	for _, p := range raw {
		pending = append(pending, p.toRelay())
	}
	return pending, nil
}

func (c *Client) HasVoted(account relay.AccountID, state relay.VotingState) bool {
	return state.HasVoted(account)
}

// IsTechCommMember checks whether account sits in the technical committee.
func (c *Client) IsTechCommMember(ctx context.Context, account relay.AccountID) (bool, error) {
	var members [][32]byte
	_, err := c.storage(ctx, ModuleTechnicalCommittee, StorageMembers, &members)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m == account {
			return true, nil
		}
	}
	return false, nil
}

// storage fetches a plain storage value and decodes it into dst.
// It returns false, leaving dst untouched, if the value is absent.
func (c *Client) storage(ctx context.Context, module, item string, dst interface{}) (bool, error) {
	key, err := StorageKey(module, item)
	if err != nil {
		return false, err
	}
	var value *string
	err = c.conn.CallContext(ctx, &value, "state_getStorage", common.BytesToHex(key))
	if err != nil {
		return false, fmt.Errorf("call state_getStorage(%s::%s): %w", module, item, err)
	}
	if value == nil || *value == "" {
		return false, nil
	}
	bz, err := common.HexToBytes(*value)
	if err != nil {
		return false, fmt.Errorf("%s::%s: %w", module, item, err)
	}
	err = scale.Unmarshal(bz, dst)
	if err != nil {
		return false, fmt.Errorf("decode %s::%s: %w", module, item, err)
	}
	return true, nil
}

// StorageKey is the key of a plain storage value: twox128(module) ++ twox128(item).
func StorageKey(module, item string) ([]byte, error) {
	m, err := common.Twox128Hash([]byte(module))
	if err != nil {
		return nil, err
	}
	i, err := common.Twox128Hash([]byte(item))
	if err != nil {
		return nil, err
	}
	return append(m, i...), nil
}
