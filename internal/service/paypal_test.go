package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelpay/internal/model"
	"travelpay/internal/sanitize"
)

func newTestPayPal(t *testing.T) (*PayPal, *fakePayPal, *memStore) {
	t.Helper()
	remote, client := newFakePayPal(t)
	store := newMemStore()
	return NewPayPal(client, store, "USD", sanitize.Text), remote, store
}

func kandyOrder() CreateOrderRequest {
	return CreateOrderRequest{
		TripName:    "Kandy Tour",
		AmountMinor: 15000,
		Quantity:    1,
		SuccessURL:  "https://example.com/success",
		CancelURL:   "https://example.com/cancel",
		Customer:    model.Customer{FirstName: "Jane", Email: "jane@example.com"},
	}
}

func TestPayPalCreateOrder(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	order, err := p.CreateOrder(context.Background(), kandyOrder())
	require.NoError(t, err)

	assert.Equal(t, "PP-1", order.OrderID)
	assert.Equal(t, string(model.PullCreated), order.Status)
	assert.Equal(t, "150.00", FormatAmount(order.Amount))
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "Kandy Tour", order.Customer.TripName)
	assert.Equal(t, 1, remote.count("create"))
	assert.Equal(t, 1, store.count())
}

func TestPayPalCreateOrderSupersedesPending(t *testing.T) {
	t.Parallel()

	p, _, store := newTestPayPal(t)
	ctx := context.Background()

	_, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	second, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)

	assert.Equal(t, 1, store.count())
	_, err = store.Find(ctx, model.OrderKey{OrderID: second.OrderID, Gateway: model.GatewayPull})
	assert.NoError(t, err)
}

func TestPayPalCreateOrderValidation(t *testing.T) {
	t.Parallel()

	p, remote, _ := newTestPayPal(t)

	req := kandyOrder()
	req.AmountMinor = 0
	_, err := p.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)

	req = kandyOrder()
	req.TripName = "<script>x</script>"
	_, err = p.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, remote.count("create"))
}

func TestPayPalCheckStatusVoidsApproved(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	remote.setStatus(order.OrderID, model.PullApproved)

	status, err := p.CheckStatus(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.PullNotFound, status)
	assert.Equal(t, 1, remote.count("void"))
	assert.Equal(t, string(model.PullVoided), remote.status(order.OrderID))
	assert.Equal(t, 0, store.count())
}

func TestPayPalCheckStatusVoidFailureStillDeletes(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	remote.setStatus(order.OrderID, model.PullApproved)
	remote.update(func(f *fakePayPal) { f.failVoid = true })

	status, err := p.CheckStatus(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.PullNotFound, status)
	assert.Equal(t, 0, store.count())
}

func TestPayPalCheckStatusCompleted(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	remote.setStatus(order.OrderID, model.PullCompleted)

	status, err := p.CheckStatus(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.PullCompleted, status)

	stored, err := store.Find(ctx, order.Key())
	require.NoError(t, err)
	assert.Equal(t, string(model.PullCompleted), stored.Status)
	assert.Equal(t, 0, remote.count("void"))
}

func TestPayPalCheckStatusUnusable(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	remote.setStatus(order.OrderID, model.PullPayerAction)

	status, err := p.CheckStatus(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.PullNotFound, status)
	assert.Equal(t, 0, store.count())
}

func TestPayPalCheckStatusRemoteDown(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	remote.update(func(f *fakePayPal) { f.failGet = true })

	status, err := p.CheckStatus(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.PullNotFound, status)
	assert.Equal(t, 0, store.count())
}

func TestPayPalCaptureAuthorizesOnce(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)

	req := CaptureRequest{OrderID: order.OrderID, TripName: "Kandy Tour", AmountMinor: 15000}
	first, err := p.CaptureOrAuthorize(ctx, req)
	require.NoError(t, err)
	second, err := p.CaptureOrAuthorize(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, model.PullCompleted, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, remote.count("authorize"))
	assert.Equal(t, 1, remote.count("get"))
	assert.Equal(t, 1, store.count())
}

func TestPayPalCaptureCachedCompleted(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, &model.PaymentOrder{
		OrderID:  "PP-OLD",
		Gateway:  model.GatewayPull,
		Currency: "USD",
		Status:   string(model.PullCompleted),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		status, err := p.CaptureOrAuthorize(ctx, CaptureRequest{OrderID: "PP-OLD"})
		require.NoError(t, err)
		assert.Equal(t, model.PullCompleted, status)
	}
	assert.Equal(t, 0, remote.count("get"))
	assert.Equal(t, 0, remote.count("authorize"))
}

func TestPayPalCaptureWithoutLocalRecord(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	created, err := remote.createDirect("200.00")
	require.NoError(t, err)

	status, err := p.CaptureOrAuthorize(ctx, CaptureRequest{
		OrderID:     created,
		TripName:    "Ella Hike",
		AmountMinor: 100,
		Customer:    model.Customer{FirstName: "<i>Sam</i>"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PullCompleted, status)

	stored, err := store.Find(ctx, model.OrderKey{OrderID: created, Gateway: model.GatewayPull})
	require.NoError(t, err)
	assert.Equal(t, "200.00", FormatAmount(stored.Amount))
	assert.Equal(t, "Sam", stored.Customer.FirstName)
	assert.Equal(t, "Ella Hike", stored.Customer.TripName)
}

func TestPayPalCaptureRemoteFailureDropsLocal(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	remote.update(func(f *fakePayPal) { f.failGet = true })

	_, err = p.CaptureOrAuthorize(ctx, CaptureRequest{OrderID: order.OrderID})
	require.ErrorIs(t, err, ErrRemoteGateway)
	assert.Equal(t, 0, store.count())
}

func TestPayPalCaptureMissingOrderID(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPayPal(t)
	_, err := p.CaptureOrAuthorize(context.Background(), CaptureRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPayPalClearTripVoidsApproved(t *testing.T) {
	t.Parallel()

	p, remote, store := newTestPayPal(t)
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, kandyOrder())
	require.NoError(t, err)
	approved := *order
	approved.Status = string(model.PullApproved)
	_, err = store.Upsert(ctx, &approved)
	require.NoError(t, err)
	remote.update(func(f *fakePayPal) { f.failVoid = true })

	require.NoError(t, p.ClearTrip(ctx, "Kandy Tour"))
	assert.Equal(t, 1, remote.count("void"))
	assert.Equal(t, 0, store.count())
}

func TestPayPalClientRetriesExpiredSession(t *testing.T) {
	t.Parallel()

	remote, client := newFakePayPal(t)
	id, err := remote.createDirect("10.00")
	require.NoError(t, err)

	remote.update(func(f *fakePayPal) { f.expireNext = true })

	got, err := client.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 2, remote.count("get"))
}

func TestPayPalClientGivesUpAfterBoundedRetry(t *testing.T) {
	t.Parallel()

	remote, client := newFakePayPal(t)
	id, err := remote.createDirect("10.00")
	require.NoError(t, err)
	remote.update(func(f *fakePayPal) { f.rejectAll = true })

	_, err = client.GetOrder(context.Background(), id)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, maxCallAttempts, remote.count("get"))
}

func TestIsSessionExpired(t *testing.T) {
	t.Parallel()

	assert.True(t, isSessionExpired(ErrSessionExpired))
	assert.True(t, isSessionExpired(errors.Join(errors.New("get"), ErrSessionExpired)))
	assert.False(t, isSessionExpired(ErrRemoteGateway))
	assert.False(t, isSessionExpired(nil))
}

// concurrentWinPayPal simulates a second capture finishing between this capture's
// GetOrder and AuthorizeOrder calls.
type concurrentWinPayPal struct {
	PayPalAPI
	store OrderStore
}

func (c *concurrentWinPayPal) GetOrder(ctx context.Context, id string) (*PayPalOrder, error) {
	_, err := c.store.Upsert(ctx, &model.PaymentOrder{
		OrderID:  id,
		Gateway:  model.GatewayPull,
		Currency: "USD",
		Status:   string(model.PullCompleted),
	})
	if err != nil {
		return nil, err
	}
	return &PayPalOrder{ID: id, Status: string(model.PullCreated)}, nil
}

func (c *concurrentWinPayPal) AuthorizeOrder(_ context.Context, id string) (*PayPalOrder, error) {
	return nil, fmt.Errorf("authorize paypal order %s: %w: unexpected status: 422, body: ORDER_ALREADY_AUTHORIZED", id, ErrRemoteGateway)
}

func TestPayPalCaptureKeepsOrderCompletedConcurrently(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := NewPayPal(&concurrentWinPayPal{store: store}, store, "USD", sanitize.Text)
	ctx := context.Background()

	_, err := store.Upsert(ctx, &model.PaymentOrder{
		OrderID:  "PP-RACE",
		Gateway:  model.GatewayPull,
		Currency: "USD",
		Status:   string(model.PullCreated),
		Customer: model.Customer{TripName: "Kandy Tour"},
	})
	require.NoError(t, err)

	status, err := p.CaptureOrAuthorize(ctx, CaptureRequest{OrderID: "PP-RACE", TripName: "Kandy Tour"})
	require.NoError(t, err)
	assert.Equal(t, model.PullCompleted, status)

	stored, err := store.Find(ctx, model.OrderKey{OrderID: "PP-RACE", Gateway: model.GatewayPull})
	require.NoError(t, err)
	assert.Equal(t, string(model.PullCompleted), stored.Status)
	assert.Equal(t, "Kandy Tour", stored.Customer.TripName)
	assert.Equal(t, 1, store.count())
}
