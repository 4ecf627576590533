package guard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tmlog "github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"golang.org/x/sync/semaphore"

	"github.com/darwinia-network/bridger-guard/relay"
)

// ChainBridge is the read side of the Darwinia ethereum relay module.
type ChainBridge interface {
	LastConfirmed(ctx context.Context) (uint64, error)
	PendingHeaders(ctx context.Context) ([]relay.PendingParcel, error)
	HasVoted(account relay.AccountID, state relay.VotingState) bool
}

// GroundTruth rebuilds parcels from ethereum independently of the relayers.
type GroundTruth interface {
	Parcel(ctx context.Context, number uint64) (relay.Parcel, error)
}

// Sink takes over a vote; it must not wait for the vote to land on chain.
type Sink interface {
	Send(ctx context.Context, vote relay.GuardVote) error
}

// Service votes on pending relay headers every interval.
type Service struct {
	service.BaseService

	account      relay.AccountID
	chain        ChainBridge
	shadow       GroundTruth
	sink         Sink
	interval     time.Duration
	cycleTimeout time.Duration
	singleFlight *semaphore.Weighted // nil when overlapping checks are allowed

	ticker     *time.Ticker
	evaluating int32
	stopped    bool
	inflight   sync.WaitGroup
	mu         sync.Mutex
}

// NewService returns nil when isTechCommMember is false: only technical
// committee members may guard, so there is nothing to run.
func NewService(
	logger tmlog.Logger,
	config Config,
	account relay.AccountID,
	isTechCommMember bool,
	chain ChainBridge,
	shadow GroundTruth,
	sink Sink,
) (*Service, error) {
	if !isTechCommMember {
		logger.Info(fmt.Sprintf("guard service not started, %s is not a technical committee member", account))
		return nil, nil
	}
	if config.GuardInterval <= 0 {
		return nil, fmt.Errorf("guard interval must be positive, got %d", config.GuardInterval)
	}
	s := &Service{
		account:      account,
		chain:        chain,
		shadow:       shadow,
		sink:         sink,
		interval:     config.Interval(),
		cycleTimeout: config.CycleTimeout(),
	}
	if config.GuardSkipOverlapping {
		s.singleFlight = semaphore.NewWeighted(1)
	}
	s.BaseService = *service.NewBaseService(logger, "Guard", s)
	return s, nil
}

func (s *Service) OnStart() error {
	s.ticker = time.NewTicker(s.interval)
	go s.loop(s.ticker)
	s.Logger.Info(fmt.Sprintf("guard service started, checking every %s as %s", s.interval, s.account))
	return nil
}

// OnStop halts the ticks. Checks already running are left to finish.
func (s *Service) OnStop() {
	s.mu.Lock()
	s.stopped = true
	s.ticker.Stop()
	s.mu.Unlock()
	s.Logger.Info("guard service stopped")
}

// Wait blocks until the service is stopped and its last checks are done.
func (s *Service) Wait() {
	s.BaseService.Wait()
	s.inflight.Wait()
}

func (s *Service) state() GuardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return StateStopped
	}
	if atomic.LoadInt32(&s.evaluating) > 0 {
		return StateEvaluating
	}
	return StateIdle
}

func (s *Service) loop(ticker *time.Ticker) {
	for {
		select {
		case <-s.Quit():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick starts one check in the background so the timer never waits for it.
func (s *Service) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.singleFlight != nil && !s.singleFlight.TryAcquire(1) {
		s.Logger.Debug("previous check is still running, skip tick")
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if s.singleFlight != nil {
			defer s.singleFlight.Release(1)
		}
		s.runCheck()
	}()
}

func (s *Service) runCheck() {
	atomic.AddInt32(&s.evaluating, 1)
	defer atomic.AddInt32(&s.evaluating, -1)

	ctx := context.Background()
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}
	votes, err := s.Check(ctx)
	if err != nil {
		s.report(err)
		return
	}
	if len(votes) > 0 {
		s.Logger.Info(fmt.Sprintf("check done, %d vote(s) sent", len(votes)))
	}
}

// report logs business errors quietly and everything else as an error.
func (s *Service) report(err error) {
	if relay.IsBizError(err) {
		s.Logger.Debug(err.Error())
		return
	}
	s.Logger.Error(err.Error())
}
