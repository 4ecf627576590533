package extrinsics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tmlog "github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/darwinia-network/bridger-guard/relay"
)

const (
	MailboxCapacity = 1000
	maxSubmitTries  = 5
)

var ErrNotRunning = errors.New("extrinsics service is not running")

// Service receives votes, keeps them in the outbox and delivers them to
// the submitter in order, retrying until they are accepted or rejected.
type Service struct {
	service.BaseService

	outbox        *Outbox
	submitter     Submitter
	mailbox       chan relay.GuardVote
	retryInterval time.Duration
	backOff       func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(logger tmlog.Logger, outbox *Outbox, submitter Submitter, retryInterval time.Duration) *Service {
	s := &Service{
		outbox:        outbox,
		submitter:     submitter,
		mailbox:       make(chan relay.GuardVote, MailboxCapacity),
		retryInterval: retryInterval,
		backOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSubmitTries-1)
		},
	}
	s.BaseService = *service.NewBaseService(logger, "Extrinsics", s)
	return s
}

func (s *Service) OnStart() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Logger.Info("extrinsics service started")
	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *Service) OnStop() {
	s.cancel()
	s.wg.Wait()
	s.Logger.Info("extrinsics service stopped")
}

// Send queues vote for delivery and returns without waiting for it.
func (s *Service) Send(ctx context.Context, vote relay.GuardVote) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	select {
	case s.mailbox <- vote:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Quit():
		return ErrNotRunning
	}
}

func (s *Service) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	// entries left over by a previous run
	s.flush()
	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case vote := <-s.mailbox:
			s.store(vote)
			s.flush()
		case <-ticker.C:
			s.flush()
		}
	}
}

// drain moves queued votes to the outbox so they survive a restart.
func (s *Service) drain() {
	for {
		select {
		case vote := <-s.mailbox:
			s.store(vote)
		default:
			return
		}
	}
}

func (s *Service) store(vote relay.GuardVote) {
	added, err := s.outbox.Add(vote)
	if err != nil {
		s.Logger.Error(fmt.Sprintf("can't store %s in outbox: %s", vote, err.Error()))
		return
	}
	if !added {
		s.Logger.Debug(fmt.Sprintf("%s is already pending", vote))
	}
}

// flush submits pending entries in order, stopping at the first one that
// can't be delivered now.
func (s *Service) flush() {
	entries, err := s.outbox.Pending()
	if err != nil {
		s.Logger.Error(fmt.Sprintf("can't read outbox: %s", err.Error()))
		return
	}
	for _, e := range entries {
		if s.ctx.Err() != nil {
			return
		}
		err := s.submit(e.Vote)
		switch {
		case err == nil:
			s.Logger.Info(fmt.Sprintf("submitted %s", e.Vote))
		case errors.Is(err, ErrRejected):
			s.Logger.Info(fmt.Sprintf("%s rejected, dropping it: %s", e.Vote, err.Error()))
		default:
			s.Logger.Error(fmt.Sprintf("can't submit %s, retry in %s: %s", e.Vote, s.retryInterval, err.Error()))
			return
		}
		err = s.outbox.Remove(e.Seq)
		if err != nil {
			s.Logger.Error(fmt.Sprintf("can't remove %s from outbox: %s", e.Vote, err.Error()))
			return
		}
	}
}

func (s *Service) submit(vote relay.GuardVote) error {
	return backoff.Retry(func() error {
		err := s.submitter.Submit(s.ctx, vote)
		if errors.Is(err, ErrRejected) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.backOff(), s.ctx))
}
