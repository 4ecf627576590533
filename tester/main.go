package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/darwinia-network/bridger-guard/darwinia"
	"github.com/darwinia-network/bridger-guard/guard"
	"github.com/darwinia-network/bridger-guard/relay"
	"github.com/darwinia-network/bridger-guard/shadow"
)

type stubSink struct {
	logger tmlog.Logger
}

var _ guard.Sink = &stubSink{}

func newStubSink(logger tmlog.Logger) *stubSink {
	return &stubSink{
		logger: logger,
	}
}

func (ss *stubSink) Send(_ context.Context, vote relay.GuardVote) error {
	ss.logger.Info(fmt.Sprintf("Send %s", vote))
	return nil
}

// account voted with when GUARD_ACCOUNT is not set
const defaultGuardAccount = "0x6a3a4cf0bd11d3e8a4a8c4ee7d7c3f9b9ff5a1fc9b0f5c0c9f8e3c5c1b3e1d2f"

func guardAccount() (relay.AccountID, error) {
	account := os.Getenv("GUARD_ACCOUNT")
	if account == "" {
		account = defaultGuardAccount
	}
	return relay.ParseAccountID(account)
}

// Runs a single guard check against live endpoints; votes are only printed.
func main() {
	logger := tmlog.NewTMLogger(os.Stdout)
	// wss://crab-rpc.darwinia.network
	// https://shadow.darwinia.network
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	account, err := guardAccount()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	chain, err := darwinia.Dial(ctx, "ws://127.0.0.1:9944")
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	defer chain.Close()

	gs, err := guard.NewService(logger, guard.Config{
		GuardInterval:     1,
		GuardCycleTimeout: 60,
	}, account, true, chain, shadow.NewClient("http://127.0.0.1:3000", 10*time.Second), newStubSink(logger))
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	votes, err := gs.Check(ctx)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	logger.Info(fmt.Sprintf("%d vote(s)", len(votes)))
}
