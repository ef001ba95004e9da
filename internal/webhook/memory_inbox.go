package webhook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

type MemoryInbox struct {
	mu     sync.Mutex
	events map[string]*InboxEvent
}

var _ Inbox = (*MemoryInbox)(nil)

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{events: make(map[string]*InboxEvent)}
}

func (m *MemoryInbox) Enqueue(_ context.Context, ev *domain.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	m.events[ev.ID] = &InboxEvent{Event: *ev, State: StatePending, ReceivedAt: now, UpdatedAt: now}
	return true, nil
}

func (m *MemoryInbox) Get(_ context.Context, id string) (*InboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *MemoryInbox) Pending(_ context.Context, limit int) ([]*InboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*InboxEvent{}
	for _, ev := range m.events {
		if ev.State == StatePending {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryInbox) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ok && ev.State == StateProcessed, nil
}

func (m *MemoryInbox) MarkProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.State = StateProcessed
	ev.LastError = ""
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryInbox) MarkFailed(_ context.Context, id string, cause error, maxAttempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false, ErrEventNotFound
	}
	recordFailure(ev, cause, maxAttempts, time.Now().UTC())
	return ev.State == StateDead, nil
}

func (m *MemoryInbox) Close() error {
	return nil
}
