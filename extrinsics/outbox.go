package extrinsics

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ChainSafe/gossamer/pkg/scale"
	dbm "github.com/tendermint/tm-db"

	"github.com/darwinia-network/bridger-guard/relay"
)

var (
	votePrefix = []byte("vote/")
	voteEnd    = []byte("vote0") // first key after the vote/ prefix
)

// Entry is a vote waiting in the outbox.
type Entry struct {
	Seq  uint64
	Vote relay.GuardVote
}

// Outbox keeps votes until they are handed over to the submitter.
type Outbox struct {
	db  dbm.DB
	seq uint64
	mu  sync.Mutex
}

// OpenOutbox opens (or creates) the outbox database under dir.
func OpenOutbox(dir string) (*Outbox, error) {
	db, err := dbm.NewDB("extrinsics", dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("open outbox in %s: %w", dir, err)
	}
	return NewOutbox(db)
}

func NewOutbox(db dbm.DB) (*Outbox, error) {
	o := &Outbox{db: db}
	it, err := db.ReverseIterator(votePrefix, voteEnd)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	if it.Valid() {
		o.seq, err = seqFromKey(it.Key())
		if err != nil {
			return nil, err
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return o, nil
}

// Add stores vote after the pending ones. It returns false if the very
// same vote is already pending.
func (o *Outbox) Add(vote relay.GuardVote) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.pending()
	if err != nil {
		return false, err
	}
	for _, e := range pending {
		if e.Vote == vote {
			return false, nil
		}
	}
	bz, err := scale.Marshal(vote)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", vote, err)
	}
	o.seq++
	err = o.db.SetSync(voteKey(o.seq), bz)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Pending returns the stored votes in the order they were added.
func (o *Outbox) Pending() ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending()
}

func (o *Outbox) pending() ([]Entry, error) {
	it, err := o.db.Iterator(votePrefix, voteEnd)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []Entry
	for ; it.Valid(); it.Next() {
		seq, err := seqFromKey(it.Key())
		if err != nil {
			return nil, err
		}
		var vote relay.GuardVote
		err = scale.Unmarshal(it.Value(), &vote)
		if err != nil {
			return nil, fmt.Errorf("decode outbox entry %d: %w", seq, err)
		}
		entries = append(entries, Entry{Seq: seq, Vote: vote})
	}
	return entries, it.Error()
}

func (o *Outbox) Remove(seq uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.db.DeleteSync(voteKey(seq))
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func voteKey(seq uint64) []byte {
	key := make([]byte, len(votePrefix)+8)
	copy(key, votePrefix)
	binary.BigEndian.PutUint64(key[len(votePrefix):], seq)
	return key
}

func seqFromKey(key []byte) (uint64, error) {
	if len(key) != len(votePrefix)+8 {
		return 0, fmt.Errorf("malformed outbox key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(votePrefix):]), nil
}
