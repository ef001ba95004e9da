package service

import (
	"context"
	"errors"
	"sync"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
)

type recordingEvents struct {
	m         sync.Mutex
	confirmed []string
	failed    []string
	err       error
}

func (r *recordingEvents) OrderConfirmed(_ context.Context, o *domain.Order) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.confirmed = append(r.confirmed, o.ID)
	return r.err
}

func (r *recordingEvents) OrderFailed(_ context.Context, o *domain.Order) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.failed = append(r.failed, o.ID)
	return r.err
}

func (r *recordingEvents) counts() (int, int) {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.confirmed), len(r.failed)
}

// failingRepository wraps a real repository and fails lookups on demand.
type failingRepository struct {
	repository.OrderRepository
	lookupErr error
}

func (f *failingRepository) GetByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.OrderRepository.GetByPaymentReference(ctx, ref)
}

var errDatabaseDown = errors.New("database down")
