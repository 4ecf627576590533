package relay

import "fmt"

// VotingState is the set of accounts that voted on a pending parcel.
type VotingState struct {
	Ayes []AccountID
	Nays []AccountID
}

// HasVoted returns true if account is among the ayes or the nays.
func (v VotingState) HasVoted(account AccountID) bool {
	for _, a := range v.Ayes {
		if a == account {
			return true
		}
	}
	for _, n := range v.Nays {
		if n == account {
			return true
		}
	}
	return false
}

// PendingParcel is a relayed header awaiting confirmation on Darwinia.
type PendingParcel struct {
	SubmittedAt uint32 // darwinia block of the submission
	Parcel      Parcel
	VotingState VotingState
}

// BlockNumber is the ethereum height the pending parcel claims to represent.
func (p PendingParcel) BlockNumber() uint64 {
	return p.Parcel.Header.Number
}

// GuardVote is the intent to affirm (Aye) or reject a pending parcel.
type GuardVote struct {
	BlockNumber uint64
	Aye         bool
}

func (v GuardVote) String() string {
	return fmt.Sprintf("GuardVote(%d, %v)", v.BlockNumber, v.Aye)
}
