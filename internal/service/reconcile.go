package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"travelpay/internal/model"
)

// Reconciler is the booking-facing entry point over both gateway adapters.
type Reconciler struct {
	push  *PayHere
	pull  *PayPal
	store OrderStore
}

func NewReconciler(push *PayHere, pull *PayPal, store OrderStore) *Reconciler {
	return &Reconciler{push: push, pull: pull, store: store}
}

// StatusView is the UI-facing status of the latest order for a trip.
type StatusView struct {
	Status        model.Result `json:"status"`
	GatewayStatus string       `json:"gatewayStatus,omitempty"`
	OrderID       string       `json:"orderId,omitempty"`
}

func (r *Reconciler) InitiateCheckout(req CheckoutRequest) (*Checkout, error) {
	return r.push.Initiate(req)
}

func (r *Reconciler) Notify(ctx context.Context, n Notification) (*NotificationResult, error) {
	return r.push.HandleNotification(ctx, n)
}

// CreateOrder starts a pull-gateway checkout after reconciling the trip's latest order,
// so a stale approval left by an abandoned attempt is voided before a new hold is placed.
// A trip already paid returns its completed order and places no new hold.
func (r *Reconciler) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.PaymentOrder, error) {
	if trip := r.pull.clean(req.TripName); trip != "" {
		latest, err := r.store.FindLatestByTrip(ctx, trip, model.GatewayPull)
		switch {
		case err == nil:
			status, err := r.pull.CheckStatus(ctx, latest)
			if err != nil {
				return nil, err
			}
			if status == model.PullCompleted {
				slog.Info("trip already paid, reusing order", "trip", trip, "order_id", latest.OrderID)
				paid := *latest
				paid.Status = string(status)
				return &paid, nil
			}
		case !errors.Is(err, ErrOrderNotFound):
			return nil, fmt.Errorf("lookup trip order: %w", err)
		}
	}
	return r.pull.CreateOrder(ctx, req)
}

func (r *Reconciler) Capture(ctx context.Context, req CaptureRequest) (StatusView, error) {
	status, err := r.pull.CaptureOrAuthorize(ctx, req)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{Status: status.Result(), GatewayStatus: string(status), OrderID: req.OrderID}, nil
}

// OrderStatus reports the latest order for a trip. Pull-gateway orders are reconciled against
// the remote gateway on every call.
func (r *Reconciler) OrderStatus(ctx context.Context, tripName string, gateway model.GatewayType) (StatusView, error) {
	notFound := StatusView{Status: model.ResultNotFound, GatewayStatus: string(model.PullNotFound)}

	tripName = r.pull.clean(tripName)
	if tripName == "" {
		return StatusView{}, &ValidationError{Fields: []string{"tripName"}}
	}
	if !gateway.Valid() {
		return StatusView{}, &ValidationError{Fields: []string{"paymentType"}}
	}

	latest, err := r.store.FindLatestByTrip(ctx, tripName, gateway)
	if errors.Is(err, ErrOrderNotFound) {
		return notFound, nil
	}
	if err != nil {
		return StatusView{}, err
	}

	if gateway == model.GatewayPush {
		status := model.PushStatus(latest.Status)
		return StatusView{Status: status.Result(), GatewayStatus: latest.Status, OrderID: latest.OrderID}, nil
	}

	status, err := r.pull.CheckStatus(ctx, latest)
	if err != nil {
		return StatusView{}, err
	}
	if status == model.PullNotFound {
		return notFound, nil
	}
	return StatusView{Status: status.Result(), GatewayStatus: string(status), OrderID: latest.OrderID}, nil
}

// ClearOrder drops pending or approved local state for a trip when checkout is abandoned.
func (r *Reconciler) ClearOrder(ctx context.Context, tripName string, gateway model.GatewayType) error {
	tripName = r.pull.clean(tripName)
	if tripName == "" {
		return &ValidationError{Fields: []string{"tripName"}}
	}
	slog.Info("clearing order state", "trip", tripName, "payment_type", gateway)

	switch gateway {
	case model.GatewayPull:
		return r.pull.ClearTrip(ctx, tripName)
	case model.GatewayPush:
		_, err := r.store.DeleteWhere(ctx, DeleteCriteria{
			Gateway:  model.GatewayPush,
			TripName: tripName,
			Statuses: []string{string(model.PushPending)},
		})
		return err
	default:
		return &ValidationError{Fields: []string{"paymentType"}}
	}
}
