package webhook

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

var (
	eventsBucket    = []byte("events")
	processedBucket = []byte("processed")
	// pending indexes events still to be processed, keyed by receive time
	// then id, so the retry poller never scans finished events.
	pendingBucket = []byte("pending")
)

// BoltInbox keeps the inbox in a single BoltDB file. Every write runs in one
// bolt transaction, so check-and-insert in Enqueue is atomic.
type BoltInbox struct {
	db *bolt.DB
}

var _ Inbox = (*BoltInbox)(nil)

func NewBoltInbox(path string) (*BoltInbox, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open inbox %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, processedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		if tx.Bucket(pendingBucket) != nil {
			return nil
		}
		if _, err := tx.CreateBucket(pendingBucket); err != nil {
			return err
		}
		return reindexPending(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create inbox buckets: %w", err)
	}
	return &BoltInbox{db: db}, nil
}

func (b *BoltInbox) Enqueue(_ context.Context, ev *domain.Event) (bool, error) {
	created := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		if bucket.Get([]byte(ev.ID)) != nil {
			return nil
		}
		now := time.Now().UTC()
		rec := &InboxEvent{Event: *ev, State: StatePending, ReceivedAt: now, UpdatedAt: now}
		if err := putEvent(tx, rec); err != nil {
			return err
		}
		created = true
		return tx.Bucket(pendingBucket).Put(pendingKey(rec), []byte(ev.ID))
	})
	return created, err
}

func (b *BoltInbox) Get(_ context.Context, id string) (*InboxEvent, error) {
	var ev *InboxEvent
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		ev, err = getEvent(tx, id)
		return err
	})
	return ev, err
}

func (b *BoltInbox) Pending(_ context.Context, limit int) ([]*InboxEvent, error) {
	out := []*InboxEvent{}
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(pendingBucket).Cursor()
		for k, id := c.First(); k != nil; k, id = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			ev, err := getEvent(tx, string(id))
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltInbox) Seen(_ context.Context, id string) (bool, error) {
	seen := false
	err := b.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(processedBucket).Get([]byte(id)) != nil
		return nil
	})
	return seen, err
}

func (b *BoltInbox) MarkProcessed(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		ev, err := getEvent(tx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		ev.State = StateProcessed
		ev.LastError = ""
		ev.UpdatedAt = now
		if err := putEvent(tx, ev); err != nil {
			return err
		}
		if err := tx.Bucket(pendingBucket).Delete(pendingKey(ev)); err != nil {
			return err
		}
		return tx.Bucket(processedBucket).Put([]byte(id), []byte(now.Format(time.RFC3339Nano)))
	})
}

func (b *BoltInbox) MarkFailed(_ context.Context, id string, cause error, maxAttempts int) (bool, error) {
	dead := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		ev, err := getEvent(tx, id)
		if err != nil {
			return err
		}
		recordFailure(ev, cause, maxAttempts, time.Now().UTC())
		dead = ev.State == StateDead
		if dead {
			if err := tx.Bucket(pendingBucket).Delete(pendingKey(ev)); err != nil {
				return err
			}
		}
		return putEvent(tx, ev)
	})
	return dead, err
}

func (b *BoltInbox) Close() error {
	return b.db.Close()
}

func getEvent(tx *bolt.Tx, id string) (*InboxEvent, error) {
	v := tx.Bucket(eventsBucket).Get([]byte(id))
	if v == nil {
		return nil, ErrEventNotFound
	}
	var ev InboxEvent
	if err := json.Unmarshal(v, &ev); err != nil {
		return nil, fmt.Errorf("decode inbox event %s: %w", id, err)
	}
	return &ev, nil
}

func putEvent(tx *bolt.Tx, ev *InboxEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return tx.Bucket(eventsBucket).Put([]byte(ev.Event.ID), data)
}

func pendingKey(ev *InboxEvent) []byte {
	k := make([]byte, 8, 8+len(ev.Event.ID))
	binary.BigEndian.PutUint64(k, uint64(ev.ReceivedAt.UnixNano()))
	return append(k, ev.Event.ID...)
}

// reindexPending builds the pending index for files written before it existed.
func reindexPending(tx *bolt.Tx) error {
	idx := tx.Bucket(pendingBucket)
	return tx.Bucket(eventsBucket).ForEach(func(_, v []byte) error {
		var ev InboxEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		if ev.State != StatePending {
			return nil
		}
		return idx.Put(pendingKey(&ev), []byte(ev.Event.ID))
	})
}
