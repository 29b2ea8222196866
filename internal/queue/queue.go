// Package queue is the offline durability queue: sale-commit requests that
// could not reach the remote service are persisted here and replayed, in
// enqueue order, until the remote confirms each one.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	bbolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quitanda/pdv/internal/domain/sale"
)

var bucketQueue = []byte("offline_sales")

// Entry wraps a commit request awaiting replay.
type Entry struct {
	ClientID   string             `json:"clientId"`
	Request    sale.CommitRequest `json:"request"`
	EnqueuedAt time.Time          `json:"enqueuedAt"`
	Attempts   int                `json:"attempts"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Committed int
	Failed    int
	Skipped   int
}

// Queue is a FIFO of pending commits persisted in bbolt. Keys are
// big-endian sequence numbers, so iteration order survives restarts.
// Drain is guarded by singleflight: the sync timer and a connectivity
// event firing together produce one pass, not two.
type Queue struct {
	db    *bbolt.DB
	lg    *zap.Logger
	drain singleflight.Group
}

// New creates the queue over an open bbolt database.
func New(db *bbolt.DB, lg *zap.Logger) (*Queue, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQueue)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create queue bucket")
	}
	return &Queue{db: db, lg: lg}, nil
}

// Enqueue appends a failed commit request for later replay.
func (q *Queue) Enqueue(req sale.CommitRequest) error {
	entry := Entry{
		ClientID:   req.ClientID,
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal queue entry")
	}

	return q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		seq, err := b.NextSequence()
		if err != nil {
			return errors.Wrap(err, "next sequence")
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return errors.Wrap(err, "store queue entry")
		}
		return nil
	})
}

// Pending returns the number of entries awaiting sync.
func (q *Queue) Pending() (int, error) {
	var n int
	err := q.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	return n, err
}

// Entries returns a snapshot of the queue in replay order.
func (q *Queue) Entries() ([]Entry, error) {
	var out []Entry
	err := q.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(_, data []byte) error {
			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				// Corrupted entries are reported by Drain; here they are
				// just absent from the snapshot.
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Drain replays pending entries against the committer in enqueue order.
//
// An entry is removed only on confirmed success; a duplicate-id response
// counts as success (the sale is already durable remotely). A failed entry
// stays in place with its attempt count bumped and the pass continues to
// the next entry, so one unreachable sale cannot block the rest. Corrupted
// entries are skipped and counted, never fatal.
//
// Concurrent calls collapse into a single pass.
func (q *Queue) Drain(ctx context.Context, committer sale.Committer) (DrainResult, error) {
	v, err, _ := q.drain.Do("drain", func() (any, error) {
		return q.drainOnce(ctx, committer)
	})
	if err != nil {
		return DrainResult{}, err
	}
	return v.(DrainResult), nil
}

func (q *Queue) drainOnce(ctx context.Context, committer sale.Committer) (DrainResult, error) {
	type keyed struct {
		key   []byte
		entry Entry
		bad   bool
	}

	var pending []keyed
	err := q.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, data []byte) error {
			item := keyed{key: append([]byte(nil), k...)}
			if err := json.Unmarshal(data, &item.entry); err != nil {
				item.bad = true
			}
			pending = append(pending, item)
			return nil
		})
	})
	if err != nil {
		return DrainResult{}, errors.Wrap(err, "read queue")
	}

	var result DrainResult
	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if item.bad {
			// Left in place for manual inspection; it never blocks the rest.
			q.lg.Warn("Skipping corrupted queue entry")
			result.Skipped++
			continue
		}

		_, err := committer.Commit(ctx, item.entry.Request)
		switch {
		case err == nil, errors.Is(err, sale.ErrDuplicateClientID):
			if err := q.delete(item.key); err != nil {
				return result, err
			}
			result.Committed++
		default:
			q.lg.Info("Offline sale replay failed, keeping entry",
				zap.String("client_id", item.entry.ClientID),
				zap.Int("attempts", item.entry.Attempts+1),
				zap.Error(err),
			)
			if err := q.bumpAttempts(item.key); err != nil {
				return result, err
			}
			result.Failed++
		}
	}
	return result, nil
}

func (q *Queue) delete(key []byte) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Delete(key)
	})
}

func (q *Queue) bumpAttempts(key []byte) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		e.Attempts++
		updated, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "marshal queue entry")
		}
		return b.Put(key, updated)
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
