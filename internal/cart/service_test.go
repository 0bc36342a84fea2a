package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/abgdnv/shopstate/internal/catalog"
	"github.com/abgdnv/shopstate/pkg/kvstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*Service, kvstore.Medium) {
	medium := kvstore.NewMemoryMedium()
	return NewService(kvstore.New(medium, testLogger()), testLogger()), medium
}

func product(id, price string) catalog.Product {
	return catalog.Product{
		ID:    id,
		Title: "Product " + id,
		Price: decimal.RequireFromString(price),
	}
}

func Test_Service_AddItem_Validation(t *testing.T) {
	testCases := []struct {
		name     string
		product  catalog.Product
		quantity int
	}{
		{name: "zero quantity", product: product("p1", "10.00"), quantity: 0},
		{name: "negative quantity", product: product("p1", "10.00"), quantity: -2},
		{name: "missing product id", product: catalog.Product{}, quantity: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			service, _ := newTestService()

			// when
			_, err := service.AddItem(context.Background(), tc.product, tc.quantity)

			// then: rejected before any mutation
			assert.ErrorIs(t, err, ErrValidation)
			items, itemsErr := service.Items(context.Background())
			require.NoError(t, itemsErr)
			assert.Empty(t, items)
		})
	}
}

func Test_Service_AddItem_MergesSameProduct(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()
	p := product("p1", "99.99")

	// when: the same product is added twice
	first, err := service.AddItem(ctx, p, 2)
	require.NoError(t, err)
	second, err := service.AddItem(ctx, p, 3)
	require.NoError(t, err)

	// then: exactly one line with the summed quantity and the original id
	items, err := service.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, items[0].Quantity)
}

func Test_Service_AddItem_FirstSeenSnapshotWins(t *testing.T) {
	// given: a product already in the cart
	service, _ := newTestService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, product("p1", "99.99"), 1)
	require.NoError(t, err)

	// when: the same product id arrives with a changed price
	repriced := product("p1", "129.99")
	_, err = service.AddItem(ctx, repriced, 1)
	require.NoError(t, err)

	// then: the persisted snapshot keeps the first-seen price
	items, err := service.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Product.Price.Equal(decimal.RequireFromString("99.99")))
}

func Test_Service_AddItem_AppendsInInsertionOrder(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()

	// when
	_, err := service.AddItem(ctx, product("p1", "10.00"), 1)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, product("p2", "20.00"), 1)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, product("p3", "30.00"), 1)
	require.NoError(t, err)

	// then
	items, err := service.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "p1", items[0].Product.ID)
	assert.Equal(t, "p2", items[1].Product.ID)
	assert.Equal(t, "p3", items[2].Product.ID)
}

func Test_Service_UpdateQuantity(t *testing.T) {
	testCases := []struct {
		name        string
		newQuantity int
		wantRemoved bool
		wantQty     int
	}{
		{name: "positive quantity replaces exactly", newQuantity: 7, wantQty: 7},
		{name: "zero removes the item", newQuantity: 0, wantRemoved: true},
		{name: "negative removes the item", newQuantity: -5, wantRemoved: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			service, _ := newTestService()
			ctx := context.Background()
			added, err := service.AddItem(ctx, product("p1", "10.00"), 2)
			require.NoError(t, err)

			// when
			require.NoError(t, service.UpdateQuantity(ctx, added.ID, tc.newQuantity))

			// then: no line with quantity <= 0 is ever persisted
			items, err := service.Items(ctx)
			require.NoError(t, err)
			if tc.wantRemoved {
				assert.Empty(t, items)
			} else {
				require.Len(t, items, 1)
				assert.Equal(t, tc.wantQty, items[0].Quantity)
			}
		})
	}
}

func Test_Service_UpdateQuantity_UnknownIDIsNoOp(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, product("p1", "10.00"), 2)
	require.NoError(t, err)

	// when
	err = service.UpdateQuantity(ctx, "no-such-item", 5)

	// then
	require.NoError(t, err)
	items, err := service.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func Test_Service_RemoveItem(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()
	added, err := service.AddItem(ctx, product("p1", "10.00"), 2)
	require.NoError(t, err)

	// when
	require.NoError(t, service.RemoveItem(ctx, added.ID))
	// removing again is a no-op
	require.NoError(t, service.RemoveItem(ctx, added.ID))

	// then
	items, err := service.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func Test_Service_Clear(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, product("p1", "10.00"), 2)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, product("p2", "20.00"), 1)
	require.NoError(t, err)

	// when
	require.NoError(t, service.Clear(ctx))

	// then
	current, err := service.Current(ctx)
	require.NoError(t, err)
	assert.Empty(t, current.Items)
	assert.True(t, current.Subtotal.IsZero())
	assert.Zero(t, current.TotalItems)
}

func Test_Service_Scenario_TotalsAcrossMutations(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()

	// when: p1 x2 at 99.99 and p2 x3 at 49.99
	p1, err := service.AddItem(ctx, product("p1", "99.99"), 2)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, product("p2", "49.99"), 3)
	require.NoError(t, err)

	// then: subtotal 349.95, tax 27.996, total 377.946, totalItems 5
	current, err := service.Current(ctx)
	require.NoError(t, err)
	assert.True(t, current.Subtotal.Equal(decimal.RequireFromString("349.95")), "subtotal = %s", current.Subtotal)
	assert.True(t, current.Tax.Equal(decimal.RequireFromString("27.996")), "tax = %s", current.Tax)
	assert.True(t, current.Total.Equal(decimal.RequireFromString("377.946")), "total = %s", current.Total)
	assert.Equal(t, 5, current.TotalItems)

	// and when: p1 drops to quantity 0
	require.NoError(t, service.UpdateQuantity(ctx, p1.ID, 0))

	// then: p1 removed, subtotal recomputes to 149.97
	current, err = service.Current(ctx)
	require.NoError(t, err)
	require.Len(t, current.Items, 1)
	assert.Equal(t, "p2", current.Items[0].Product.ID)
	assert.True(t, current.Subtotal.Equal(decimal.RequireFromString("149.97")), "subtotal = %s", current.Subtotal)
}

func Test_Service_CorruptCartSelfHeals(t *testing.T) {
	// given: garbage persisted under the cart key
	medium := kvstore.NewMemoryMedium()
	service := NewService(kvstore.New(medium, testLogger()), testLogger())
	ctx := context.Background()
	require.NoError(t, medium.Write(ctx, Namespace, "items", []byte("{corrupt")))

	// when
	items, err := service.Items(ctx)

	// then: decode failure is recovered silently as an empty cart
	require.NoError(t, err)
	assert.Empty(t, items)
	// and the corrupt entry was cleared
	_, readErr := medium.Read(ctx, Namespace, "items")
	assert.ErrorIs(t, readErr, kvstore.ErrNotFound)
	// and the cart is usable again
	_, err = service.AddItem(ctx, product("p1", "10.00"), 1)
	require.NoError(t, err)
}

func Test_Service_KindMismatchSelfHeals(t *testing.T) {
	// given: the cart key written with the wrong kind
	medium := kvstore.NewMemoryMedium()
	store := kvstore.New(medium, testLogger())
	service := NewService(store, testLogger())
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, Namespace, "items", kvstore.ScalarValue("oops")))

	// when
	items, err := service.Items(ctx)

	// then
	require.NoError(t, err)
	assert.Empty(t, items)
}

// failingMedium fails writes but serves reads from the wrapped medium.
type failingMedium struct {
	kvstore.Medium
	writeErr error
}

func (f *failingMedium) Write(context.Context, string, string, []byte) error {
	return f.writeErr
}

func Test_Service_WriteFailurePropagatesAndPreservesState(t *testing.T) {
	// given: a cart with one item, then a medium that refuses writes
	backing := kvstore.NewMemoryMedium()
	service := NewService(kvstore.New(backing, testLogger()), testLogger())
	ctx := context.Background()
	added, err := service.AddItem(ctx, product("p1", "10.00"), 2)
	require.NoError(t, err)

	writeErr := errors.New("medium unavailable")
	broken := NewService(kvstore.New(&failingMedium{Medium: backing, writeErr: writeErr}, testLogger()), testLogger())

	// when
	_, err = broken.AddItem(ctx, product("p2", "20.00"), 1)

	// then: the failure is surfaced, and the persisted cart is unmodified
	assert.ErrorIs(t, err, writeErr)
	items, err := service.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, added.ID, items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
}

func Test_Service_NotifiesOnEveryMutation(t *testing.T) {
	// given
	service, _ := newTestService()
	ctx := context.Background()
	var notifications []Cart
	cancel := service.Subscribe(func(c Cart) {
		notifications = append(notifications, c)
	})
	defer cancel()

	// when
	added, err := service.AddItem(ctx, product("p1", "10.00"), 2)
	require.NoError(t, err)
	require.NoError(t, service.UpdateQuantity(ctx, added.ID, 5))
	require.NoError(t, service.Clear(ctx))

	// then: one push per transition, carrying the recomputed read model
	require.Len(t, notifications, 3)
	assert.Equal(t, 2, notifications[0].TotalItems)
	assert.Equal(t, 5, notifications[1].TotalItems)
	assert.Zero(t, notifications[2].TotalItems)
}

func Test_Service_PersistsAcrossInstances(t *testing.T) {
	// given: a cart persisted through one aggregate instance
	medium := kvstore.NewMemoryMedium()
	first := NewService(kvstore.New(medium, testLogger()), testLogger())
	ctx := context.Background()
	_, err := first.AddItem(ctx, product("p1", "99.99"), 2)
	require.NoError(t, err)

	// when: a second instance is built over the same medium
	second := NewService(kvstore.New(medium, testLogger()), testLogger())

	// then: the persisted sequence is visible as-is
	items, err := second.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].Product.ID)
}
