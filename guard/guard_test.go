package guard

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/darwinia-network/bridger-guard/relay"
)

var (
	guardAccount = relay.AccountID{0x01}
	otherAccount = relay.AccountID{0x02}
)

type fakeChain struct {
	mu           sync.Mutex
	last         uint64
	lastErr      error
	pending      []relay.PendingParcel
	pendingErr   error
	lastCalls    int
	pendingCalls int
}

func (c *fakeChain) LastConfirmed(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCalls++
	return c.last, c.lastErr
}

func (c *fakeChain) PendingHeaders(context.Context) ([]relay.PendingParcel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCalls++
	return c.pending, c.pendingErr
}

func (c *fakeChain) HasVoted(account relay.AccountID, state relay.VotingState) bool {
	return state.HasVoted(account)
}

func (c *fakeChain) LastCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCalls
}

type fakeShadow struct {
	mu      sync.Mutex
	parcels map[uint64]relay.Parcel
	errs    map[uint64]error
	calls   []uint64
	block   chan struct{} // when set, Parcel waits on it
	active  int
	maxSeen int
}

func newFakeShadow() *fakeShadow {
	return &fakeShadow{parcels: make(map[uint64]relay.Parcel), errs: make(map[uint64]error)}
}

func (s *fakeShadow) Parcel(ctx context.Context, number uint64) (relay.Parcel, error) {
	s.mu.Lock()
	s.calls = append(s.calls, number)
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	block := s.block
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if block != nil {
		<-block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[number]; ok {
		return relay.Parcel{}, err
	}
	p, ok := s.parcels[number]
	if !ok {
		return relay.Parcel{}, relay.NewBizError("parcel %d not available", number)
	}
	return p, nil
}

func (s *fakeShadow) Calls() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.calls...)
}

func (s *fakeShadow) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

type fakeSink struct {
	mu    sync.Mutex
	votes []relay.GuardVote
	errs  map[uint64]error
}

func (s *fakeSink) Send(_ context.Context, vote relay.GuardVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[vote.BlockNumber]; ok {
		return err
	}
	s.votes = append(s.votes, vote)
	return nil
}

func (s *fakeSink) Votes() []relay.GuardVote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.GuardVote(nil), s.votes...)
}

func testParcel(number uint64) relay.Parcel {
	return relay.Parcel{
		Header: relay.EthereumHeader{
			ParentHash: ethcommon.BigToHash(big.NewInt(int64(number - 1))),
			Number:     number,
			Timestamp:  1600000000 + number,
			ExtraData:  []byte("geth"),
			GasUsed:    big.NewInt(21000),
			GasLimit:   big.NewInt(12500000),
			Difficulty: big.NewInt(3000000000),
		},
		MMRRoot: ethcommon.BigToHash(big.NewInt(int64(number))),
	}
}

func pendingParcel(number uint64, voted ...relay.AccountID) relay.PendingParcel {
	return relay.PendingParcel{
		SubmittedAt: 1,
		Parcel:      testParcel(number),
		VotingState: relay.VotingState{Ayes: voted},
	}
}

func testConfig() Config {
	return Config{GuardInterval: 1, GuardCycleTimeout: 5}
}

func newTestService(t *testing.T, config Config, chain ChainBridge, shadow GroundTruth, sink Sink) *Service {
	t.Helper()
	s, err := NewService(tmlog.TestingLogger(), config, guardAccount, true, chain, shadow, sink)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestCheckVotesAyeAndSkipsStale(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101), pendingParcel(99)}}
	shadow := newFakeShadow()
	shadow.parcels[101] = testParcel(101)
	shadow.parcels[99] = testParcel(99)
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	votes, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, []relay.GuardVote{{BlockNumber: 101, Aye: true}}, votes)
	require.Equal(t, votes, sink.Votes())
	require.Equal(t, []uint64{101}, shadow.Calls())
}

func TestCheckVotesNayOnSingleFieldMismatch(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101)}}
	shadow := newFakeShadow()
	forged := testParcel(101)
	forged.Header.ReceiptsRoot[31] = 0x01
	shadow.parcels[101] = forged
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	votes, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, []relay.GuardVote{{BlockNumber: 101, Aye: false}}, votes)
	require.Equal(t, votes, sink.Votes())
}

func TestCheckSkipsAlreadyVoted(t *testing.T) {
	voted := pendingParcel(101, guardAccount)
	nayVoted := pendingParcel(102)
	nayVoted.VotingState.Nays = []relay.AccountID{guardAccount}
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{voted, nayVoted, pendingParcel(103, otherAccount)}}
	shadow := newFakeShadow()
	for _, n := range []uint64{101, 102, 103} {
		shadow.parcels[n] = testParcel(n)
	}
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	votes, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, []relay.GuardVote{{BlockNumber: 103, Aye: true}}, votes)
	require.Equal(t, []uint64{103}, shadow.Calls())
}

func TestCheckNeverVotesAtOrBelowLastConfirmed(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(100), pendingParcel(50), pendingParcel(1)}}
	shadow := newFakeShadow()
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	votes, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Empty(t, votes)
	require.Empty(t, sink.Votes())
	require.Empty(t, shadow.Calls())
}

func TestCheckKeepsChainOrder(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(105), pendingParcel(103), pendingParcel(104)}}
	shadow := newFakeShadow()
	shadow.parcels[105] = testParcel(105)
	shadow.parcels[103] = testParcel(1)
	shadow.parcels[104] = testParcel(104)
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	_, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, []relay.GuardVote{
		{BlockNumber: 105, Aye: true},
		{BlockNumber: 103, Aye: false},
		{BlockNumber: 104, Aye: true},
	}, sink.Votes())
}

func TestCheckIsolatesHeaderFailures(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101), pendingParcel(102), pendingParcel(103), pendingParcel(104)}}
	shadow := newFakeShadow()
	shadow.errs[101] = errors.New("connection refused")
	// 102 is not in the shadow yet: business error
	shadow.parcels[103] = testParcel(103)
	shadow.parcels[104] = testParcel(104)
	sink := &fakeSink{errs: map[uint64]error{103: errors.New("mailbox full")}}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	votes, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, []relay.GuardVote{{BlockNumber: 104, Aye: true}}, votes)
	require.Equal(t, []uint64{101, 102, 103, 104}, shadow.Calls())
}

func TestCheckIsIdempotent(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101), pendingParcel(102)}}
	shadow := newFakeShadow()
	shadow.parcels[101] = testParcel(101)
	shadow.parcels[102] = testParcel(7)
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	first, err := s.Check(context.Background())
	require.NoError(t, err)
	second, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, first, second)
	require.Len(t, sink.Votes(), 4)
}

func TestCheckAbortsWithoutLastConfirmed(t *testing.T) {
	chain := &fakeChain{lastErr: errors.New("ws closed"), pending: []relay.PendingParcel{pendingParcel(101)}}
	shadow := newFakeShadow()
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)

	votes, err := s.Check(context.Background())
	require.Error(t, err)
	require.Empty(t, votes)
	require.Equal(t, 0, chain.pendingCalls)
	require.Empty(t, sink.Votes())
}

func TestCheckAbortsWithoutPendingHeaders(t *testing.T) {
	chain := &fakeChain{last: 100, pendingErr: errors.New("decode PendingRelayHeaderParcels")}
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, newFakeShadow(), sink)

	votes, err := s.Check(context.Background())
	require.Error(t, err)
	require.Empty(t, votes)
	require.Empty(t, sink.Votes())
}

func TestCheckNothingPending(t *testing.T) {
	chain := &fakeChain{last: 100}
	shadow := newFakeShadow()
	s := newTestService(t, testConfig(), chain, shadow, &fakeSink{})

	votes, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Empty(t, votes)
	require.Empty(t, shadow.Calls())
}

func TestNewServiceDisabled(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101)}}
	s, err := NewService(tmlog.TestingLogger(), testConfig(), guardAccount, false, chain, newFakeShadow(), &fakeSink{})
	require.NoError(t, err)
	require.Nil(t, s)
	require.Equal(t, 0, chain.LastCalls())
}

func TestNewServiceRejectsInterval(t *testing.T) {
	config := testConfig()
	config.GuardInterval = 0
	_, err := NewService(tmlog.TestingLogger(), config, guardAccount, true, &fakeChain{}, newFakeShadow(), &fakeSink{})
	require.Error(t, err)
}

func TestServiceTicksUntilStopped(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101)}}
	shadow := newFakeShadow()
	shadow.parcels[101] = testParcel(101)
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)
	s.interval = 10 * time.Millisecond

	require.IsType(t, GuardState(0), s.state())
	require.Equal(t, StateIdle, s.state())
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return len(sink.Votes()) >= 3
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	s.Wait()
	require.Equal(t, StateStopped, s.state())
	calls := chain.LastCalls()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, calls, chain.LastCalls())
	for _, v := range sink.Votes() {
		require.Equal(t, relay.GuardVote{BlockNumber: 101, Aye: true}, v)
	}
}

func TestServiceAllowsOverlappingChecks(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101)}}
	shadow := newFakeShadow()
	shadow.parcels[101] = testParcel(101)
	shadow.block = make(chan struct{})
	sink := &fakeSink{}
	s := newTestService(t, testConfig(), chain, shadow, sink)
	s.interval = 10 * time.Millisecond

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return shadow.MaxConcurrent() >= 2
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, StateEvaluating, s.state())

	require.NoError(t, s.Stop())
	close(shadow.block)
	s.Wait()
	// every overlapping check voted: the outbox and the chain dedup them
	require.GreaterOrEqual(t, len(sink.Votes()), 2)
}

func TestServiceSkipsOverlappingChecks(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101)}}
	shadow := newFakeShadow()
	shadow.parcels[101] = testParcel(101)
	shadow.block = make(chan struct{})
	sink := &fakeSink{}
	config := testConfig()
	config.GuardSkipOverlapping = true
	s := newTestService(t, config, chain, shadow, sink)
	s.interval = 10 * time.Millisecond

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return len(shadow.Calls()) == 1
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, chain.LastCalls())
	require.Equal(t, 1, shadow.MaxConcurrent())

	require.NoError(t, s.Stop())
	close(shadow.block)
	s.Wait()
	require.Equal(t, []relay.GuardVote{{BlockNumber: 101, Aye: true}}, sink.Votes())
}

func TestStopLetsRunningCheckFinish(t *testing.T) {
	chain := &fakeChain{last: 100, pending: []relay.PendingParcel{pendingParcel(101)}}
	shadow := newFakeShadow()
	shadow.parcels[101] = testParcel(101)
	shadow.block = make(chan struct{})
	sink := &fakeSink{}
	config := testConfig()
	config.GuardSkipOverlapping = true
	s := newTestService(t, config, chain, shadow, sink)
	s.interval = 10 * time.Millisecond

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return len(shadow.Calls()) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.Empty(t, sink.Votes())

	close(shadow.block)
	s.Wait()
	require.Equal(t, []relay.GuardVote{{BlockNumber: 101, Aye: true}}, sink.Votes())
}
