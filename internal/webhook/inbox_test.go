package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

func newEvent(id string) *domain.Event {
	return &domain.Event{
		ID:        id,
		Kind:      domain.EventPaymentSucceeded,
		Reference: "pi_" + id,
		Created:   time.Now().UTC(),
		Intent:    &domain.PaymentIntent{ID: "pi_" + id, ClientSecret: "pi_secret", Status: domain.IntentStatusSucceeded, Amount: 5999, Currency: "gbp"},
	}
}

func runInboxContract(t *testing.T, newInbox func(t *testing.T) Inbox) {
	ctx := context.Background()

	t.Run("enqueue once", func(t *testing.T) {
		inbox := newInbox(t)
		fresh, err := inbox.Enqueue(ctx, newEvent("evt_1"))
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = inbox.Enqueue(ctx, newEvent("evt_1"))
		require.NoError(t, err)
		assert.False(t, fresh)

		pending, err := inbox.Pending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "evt_1", pending[0].Event.ID)
		assert.Equal(t, int64(5999), pending[0].Event.Intent.Amount)
	})

	t.Run("processed events are seen", func(t *testing.T) {
		inbox := newInbox(t)
		_, err := inbox.Enqueue(ctx, newEvent("evt_1"))
		require.NoError(t, err)

		seen, err := inbox.Seen(ctx, "evt_1")
		require.NoError(t, err)
		assert.False(t, seen)

		require.NoError(t, inbox.MarkProcessed(ctx, "evt_1"))
		seen, err = inbox.Seen(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, seen)

		pending, err := inbox.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("failures until dead", func(t *testing.T) {
		inbox := newInbox(t)
		_, err := inbox.Enqueue(ctx, newEvent("evt_1"))
		require.NoError(t, err)

		cause := errors.New("db down")
		dead, err := inbox.MarkFailed(ctx, "evt_1", cause, 2)
		require.NoError(t, err)
		assert.False(t, dead)

		ev, err := inbox.Get(ctx, "evt_1")
		require.NoError(t, err)
		assert.Equal(t, StatePending, ev.State)
		assert.Equal(t, 1, ev.Attempts)
		assert.Equal(t, "db down", ev.LastError)

		dead, err = inbox.MarkFailed(ctx, "evt_1", cause, 2)
		require.NoError(t, err)
		assert.True(t, dead)

		pending, err := inbox.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("unknown ids", func(t *testing.T) {
		inbox := newInbox(t)
		_, err := inbox.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.ErrorIs(t, inbox.MarkProcessed(ctx, "missing"), ErrEventNotFound)
		_, err = inbox.MarkFailed(ctx, "missing", nil, 3)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("pending respects limit and order", func(t *testing.T) {
		inbox := newInbox(t)
		for _, id := range []string{"evt_a", "evt_b", "evt_c"} {
			_, err := inbox.Enqueue(ctx, newEvent(id))
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}
		pending, err := inbox.Pending(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "evt_a", pending[0].Event.ID)
		assert.Equal(t, "evt_b", pending[1].Event.ID)
	})
}

func TestMemoryInbox(t *testing.T) {
	runInboxContract(t, func(t *testing.T) Inbox {
		return NewMemoryInbox()
	})
}

func TestBoltInbox(t *testing.T) {
	runInboxContract(t, func(t *testing.T) Inbox {
		inbox, err := NewBoltInbox(filepath.Join(t.TempDir(), "inbox.db"))
		require.NoError(t, err)
		t.Cleanup(func() { inbox.Close() })
		return inbox
	})
}

func TestBoltInbox_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.db")
	ctx := context.Background()

	inbox, err := NewBoltInbox(path)
	require.NoError(t, err)
	_, err = inbox.Enqueue(ctx, newEvent("evt_1"))
	require.NoError(t, err)
	require.NoError(t, inbox.Close())

	inbox, err = NewBoltInbox(path)
	require.NoError(t, err)
	defer inbox.Close()

	pending, err := inbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventPaymentSucceeded, pending[0].Event.Kind)
}

func TestBoltInbox_PendingIndexOnlyHoldsOpenEvents(t *testing.T) {
	ctx := context.Background()
	inbox, err := NewBoltInbox(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	defer inbox.Close()

	for _, id := range []string{"evt_done", "evt_dead", "evt_open"} {
		_, err := inbox.Enqueue(ctx, newEvent(id))
		require.NoError(t, err)
	}
	require.NoError(t, inbox.MarkProcessed(ctx, "evt_done"))
	_, err = inbox.MarkFailed(ctx, "evt_dead", errors.New("boom"), 1)
	require.NoError(t, err)

	indexed := 0
	require.NoError(t, inbox.db.View(func(tx *bolt.Tx) error {
		indexed = tx.Bucket(pendingBucket).Stats().KeyN
		return nil
	}))
	assert.Equal(t, 1, indexed)

	pending, err := inbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt_open", pending[0].Event.ID)

	// finished events stay readable
	ev, err := inbox.Get(ctx, "evt_done")
	require.NoError(t, err)
	assert.Equal(t, StateProcessed, ev.State)
}

func TestBoltInbox_IndexesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		events, err := tx.CreateBucket(eventsBucket)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for id, state := range map[string]State{"evt_old": StatePending, "evt_finished": StateProcessed} {
			raw, err := json.Marshal(&InboxEvent{Event: *newEvent(id), State: state, ReceivedAt: now, UpdatedAt: now})
			if err != nil {
				return err
			}
			if err := events.Put([]byte(id), raw); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, db.Close())

	inbox, err := NewBoltInbox(path)
	require.NoError(t, err)
	defer inbox.Close()

	pending, err := inbox.Pending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt_old", pending[0].Event.ID)
}
