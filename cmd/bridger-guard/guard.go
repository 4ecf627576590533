package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/darwinia-network/bridger-guard/darwinia"
	"github.com/darwinia-network/bridger-guard/extrinsics"
	"github.com/darwinia-network/bridger-guard/guard"
	"github.com/darwinia-network/bridger-guard/relay"
	"github.com/darwinia-network/bridger-guard/shadow"
)

const startupTimeout = 30 * time.Second

func guardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guard",
		Short: "Run the guard service standalone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runGuard(config, logger)
		},
	}
}

func runGuard(config guard.Config, logger tmlog.Logger) error {
	account, err := relay.ParseAccountID(config.GuardAccount)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	chain, err := darwinia.Dial(ctx, config.DarwiniaEndpoint)
	if err != nil {
		return err
	}
	defer chain.Close()
	chainName, err := chain.CheckConnection(ctx)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Connected to %s at %s", chainName, config.DarwiniaEndpoint))

	isTechCommMember, err := chain.IsTechCommMember(ctx, account)
	if err != nil {
		return fmt.Errorf("query technical committee: %w", err)
	}

	var submitter extrinsics.Submitter
	if config.DryRun {
		submitter = extrinsics.NewLogSubmitter(logger.With("module", "extrinsics"))
	} else {
		rpcSubmitter, err := extrinsics.DialSubmitter(ctx, config.ExtrinsicsEndpoint)
		if err != nil {
			return err
		}
		defer rpcSubmitter.Close()
		submitter = rpcSubmitter
	}
	outbox, err := extrinsics.OpenOutbox(config.ExtrinsicsDBDir)
	if err != nil {
		return err
	}
	defer outbox.Close()

	sink := extrinsics.NewService(logger.With("module", "extrinsics"), outbox, submitter, config.RetryInterval())
	gs, err := guard.NewService(
		logger.With("module", "guard"),
		config,
		account,
		isTechCommMember,
		chain,
		shadow.NewClient(config.ShadowEndpoint, config.HTTPTimeout()),
		sink,
	)
	if err != nil {
		return err
	}

	if err := sink.Start(); err != nil {
		return err
	}
	if gs != nil {
		if err := gs.Start(); err != nil {
			return err
		}
	}

	logger.Info("Ctrl-C to shut down")
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Ctrl-C received, shutting down")

	// let running checks hand their votes over before the sink goes
	if gs != nil {
		if err := gs.Stop(); err != nil {
			logger.Error(fmt.Sprintf("stop guard: %s", err.Error()))
		}
		gs.Wait()
	}
	return sink.Stop()
}
