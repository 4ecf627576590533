package extrinsics

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/darwinia-network/bridger-guard/relay"
)

// ErrRejected wraps a submission the receiving side refused. Rejected
// votes are not retried.
var ErrRejected = errors.New("extrinsic rejected")

// Submitter turns a vote into a signed extrinsic on Darwinia.
type Submitter interface {
	Submit(ctx context.Context, vote relay.GuardVote) error
}

type extrinsicJSON struct {
	Type        string `json:"type"`
	BlockNumber uint64 `json:"block_number"`
	Aye         bool   `json:"aye"`
}

// RPCSubmitter hands votes to the relayer extrinsics endpoint, which owns
// the keys, nonces and fees.
type RPCSubmitter struct {
	conn *rpc.Client
}

func DialSubmitter(ctx context.Context, endpoint string) (*RPCSubmitter, error) {
	conn, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &RPCSubmitter{conn: conn}, nil
}

func (s *RPCSubmitter) Submit(ctx context.Context, vote relay.GuardVote) error {
	var hash string
	err := s.conn.CallContext(ctx, &hash, "bridger_submitExtrinsic", extrinsicJSON{
		Type:        "GuardVote",
		BlockNumber: vote.BlockNumber,
		Aye:         vote.Aye,
	})
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s (code %d)", ErrRejected, rpcErr.Error(), rpcErr.ErrorCode())
	}
	return err
}

func (s *RPCSubmitter) Close() {
	s.conn.Close()
}

// LogSubmitter only logs the votes; used for dry runs.
type LogSubmitter struct {
	logger tmlog.Logger
}

func NewLogSubmitter(logger tmlog.Logger) *LogSubmitter {
	return &LogSubmitter{logger: logger}
}

func (s *LogSubmitter) Submit(_ context.Context, vote relay.GuardVote) error {
	s.logger.Info(fmt.Sprintf("dry run: %s not submitted", vote))
	return nil
}
