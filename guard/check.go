package guard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/darwinia-network/bridger-guard/relay"
)

// Check runs one decision cycle: every pending header above the last
// confirmed block that this account has not voted on yet is compared with
// the shadow parcel, and the resulting vote goes to the sink.
//
// The error is set only when the cycle could not start. Failures of a
// single header are logged and the next header is checked.
func (s *Service) Check(ctx context.Context) ([]relay.GuardVote, error) {
	s.Logger.Debug("Checking pending headers...")

	lastConfirmed, err := s.chain.LastConfirmed(ctx)
	if err != nil {
		return nil, fmt.Errorf("query last confirmed block: %w", err)
	}
	pending, err := s.chain.PendingHeaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pending headers: %w", err)
	}
	if len(pending) == 0 {
		s.Logger.Debug("no pending headers")
		return nil, nil
	}
	s.Logger.Debug(fmt.Sprintf("pending headers: %s, last confirmed: %d", blockNumbers(pending), lastConfirmed))

	var votes []relay.GuardVote
	for _, p := range pending {
		vote, ok := s.evaluate(ctx, lastConfirmed, p)
		if ok {
			votes = append(votes, vote)
		}
	}
	return votes, nil
}

func (s *Service) evaluate(ctx context.Context, lastConfirmed uint64, p relay.PendingParcel) (relay.GuardVote, bool) {
	number := p.BlockNumber()
	if number <= lastConfirmed {
		s.Logger.Debug(fmt.Sprintf("header %d is not above last confirmed %d, skip", number, lastConfirmed))
		return relay.GuardVote{}, false
	}
	if s.chain.HasVoted(s.account, p.VotingState) {
		s.Logger.Debug(fmt.Sprintf("header %d already voted, skip", number))
		return relay.GuardVote{}, false
	}

	truth, err := s.shadow.Parcel(ctx, number)
	if err != nil {
		s.report(fmt.Errorf("parcel %d from shadow: %w", number, err))
		return relay.GuardVote{}, false
	}

	vote := relay.GuardVote{BlockNumber: number, Aye: p.Parcel.IsSameAs(truth)}
	if vote.Aye {
		s.Logger.Info(fmt.Sprintf("header %d matches shadow, vote aye", number))
	} else {
		s.Logger.Info(fmt.Sprintf("header %d differs from shadow, vote nay (-pending +shadow):\n%s", number, p.Parcel.Diff(truth)))
	}

	err = s.sink.Send(ctx, vote)
	if err != nil {
		s.report(fmt.Errorf("send %s: %w", vote, err))
		return relay.GuardVote{}, false
	}
	return vote, true
}

func blockNumbers(pending []relay.PendingParcel) string {
	numbers := make([]string, len(pending))
	for i, p := range pending {
		numbers[i] = strconv.FormatUint(p.BlockNumber(), 10)
	}
	return strings.Join(numbers, ", ")
}
