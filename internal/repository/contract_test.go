package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(ref string) *domain.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Order{
		ID:               uuid.NewString(),
		OrderNumber:      "PPB-2026-123456",
		PaymentReference: ref,
		PaymentKind:      domain.PaymentKindSession,
		Status:           domain.OrderStatusConfirmed,
		Customer:         domain.CustomerInfo{Email: "owner@example.com", Name: "Biscuit Owner"},
		ShippingAddress:  &domain.Address{Line1: "1 Bark Street", City: "London", PostalCode: "E1 6AN", Country: "GB"},
		Items: []domain.CartLine{
			{ProductID: "royal-velvet-cape", VariantKey: "M", UnitPrice: 5999, Quantity: 1, DisplayName: "Royal Velvet Cape"},
		},
		Totals:            domain.Totals{Subtotal: 5999, Total: 5999},
		Currency:          "gbp",
		CreatedAt:         now,
		UpdatedAt:         now,
		EstimatedDelivery: now.Add(domain.DeliveryLeadTime),
	}
}

// runRepositoryContract exercises behaviour every OrderRepository must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) OrderRepository) {
	t.Run("upsert creates then returns existing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := newTestOrder("cs_test_upsert")
		stored, created, err := repo.UpsertByPaymentReference(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, first.ID, stored.ID)

		second := newTestOrder("cs_test_upsert")
		second.Totals.Total = 1
		again, created, err := repo.UpsertByPaymentReference(ctx, second)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, int64(5999), again.Totals.Total)
	})

	t.Run("get by id and reference", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		order := newTestOrder("pi_test_get")
		order.PaymentKind = domain.PaymentKindIntent
		_, _, err := repo.UpsertByPaymentReference(ctx, order)
		require.NoError(t, err)

		byID, err := repo.GetByOrderID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.PaymentReference, byID.PaymentReference)
		assert.Equal(t, domain.PaymentKindIntent, byID.PaymentKind)
		assert.Equal(t, order.Items, byID.Items)
		assert.Equal(t, order.Customer, byID.Customer)
		require.NotNil(t, byID.ShippingAddress)
		assert.Equal(t, "E1 6AN", byID.ShippingAddress.PostalCode)
		assert.Nil(t, byID.BillingAddress)
		assert.True(t, order.CreatedAt.Equal(byID.CreatedAt))

		byRef, err := repo.GetByPaymentReference(ctx, order.PaymentReference)
		require.NoError(t, err)
		assert.Equal(t, order.ID, byRef.ID)
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetByOrderID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrOrderNotFound)

		_, err = repo.GetByPaymentReference(ctx, "cs_missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)

		_, err = repo.UpdateStatus(ctx, "cs_missing", domain.OrderStatusFailed)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("status transitions", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		order := newTestOrder("pi_test_status")
		order.Status = domain.OrderStatusPending
		_, _, err := repo.UpsertByPaymentReference(ctx, order)
		require.NoError(t, err)

		updated, err := repo.UpdateStatus(ctx, order.PaymentReference, domain.OrderStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)

		// same status again is a no-op
		updated, err = repo.UpdateStatus(ctx, order.PaymentReference, domain.OrderStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)

		_, err = repo.UpdateStatus(ctx, order.PaymentReference, domain.OrderStatusPending)
		assert.ErrorIs(t, err, ErrIllegalTransition)

		stored, err := repo.GetByPaymentReference(ctx, order.PaymentReference)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
		assert.Equal(t, int64(5999), stored.Totals.Total)
	})

	t.Run("concurrent upserts create one order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const workers = 8
		var wg sync.WaitGroup
		ids := make([]string, workers)
		createdCount := make([]bool, workers)
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				stored, created, err := repo.UpsertByPaymentReference(ctx, newTestOrder("cs_test_race"))
				errs[i] = err
				if err == nil {
					ids[i] = stored.ID
					createdCount[i] = created
				}
			}(i)
		}
		wg.Wait()

		n := 0
		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
			if createdCount[i] {
				n++
			}
		}
		assert.Equal(t, 1, n)
	})

	t.Run("list recent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		older := newTestOrder("cs_old")
		older.CreatedAt = older.CreatedAt.Add(-time.Hour)
		newer := newTestOrder("cs_new")
		for _, o := range []*domain.Order{older, newer} {
			_, _, err := repo.UpsertByPaymentReference(ctx, o)
			require.NoError(t, err)
		}

		orders, err := repo.ListRecent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, "cs_new", orders[0].PaymentReference)
	})
}
