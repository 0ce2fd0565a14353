package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"travelpay/internal/model"
)

// PayPalAPI is the remote create/authorize/void surface used by the pull adapter.
type PayPalAPI interface {
	CreateOrder(ctx context.Context, o NewPayPalOrder) (*PayPalOrder, error)
	GetOrder(ctx context.Context, id string) (*PayPalOrder, error)
	AuthorizeOrder(ctx context.Context, id string) (*PayPalOrder, error)
	VoidOrder(ctx context.Context, id string) error
}

// pendingPullStatuses are the local statuses a new checkout for the same trip supersedes.
var pendingPullStatuses = []string{
	string(model.PullCreated),
	string(model.PullSaved),
	string(model.PullPayerAction),
	string(model.PullApproved),
}

// PayPal drives the create -> authorize lifecycle and reconciles remote status locally.
type PayPal struct {
	api      PayPalAPI
	store    OrderStore
	currency string
	clean    func(string) string
}

func NewPayPal(api PayPalAPI, store OrderStore, currency string, clean func(string) string) *PayPal {
	if clean == nil {
		clean = strings.TrimSpace
	}
	if currency == "" {
		currency = "USD"
	}
	return &PayPal{api: api, store: store, currency: currency, clean: clean}
}

type CreateOrderRequest struct {
	TripName    string         `json:"tripName"`
	AmountMinor int64          `json:"amount"`
	Quantity    int            `json:"quantity"`
	SuccessURL  string         `json:"successUrl"`
	CancelURL   string         `json:"cancelUrl"`
	Customer    model.Customer `json:"customer"`
}

func minorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// CreateOrder clears superseded attempts for the trip, creates a remote order with intent
// AUTHORIZE and records it under the remote order id.
func (p *PayPal) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.PaymentOrder, error) {
	req.TripName = p.clean(req.TripName)
	req.SuccessURL = p.clean(req.SuccessURL)
	req.CancelURL = p.clean(req.CancelURL)

	err := requireFields(map[string]string{
		"tripName":   req.TripName,
		"successUrl": req.SuccessURL,
		"cancelUrl":  req.CancelURL,
	}, "tripName", "successUrl", "cancelUrl")
	if err != nil {
		return nil, err
	}
	if req.AmountMinor <= 0 {
		return nil, &ValidationError{Fields: []string{"amount"}}
	}

	if err := p.ClearTrip(ctx, req.TripName); err != nil {
		return nil, err
	}

	amount := minorToMajor(req.AmountMinor)
	remote, err := p.api.CreateOrder(ctx, NewPayPalOrder{
		Description: req.TripName,
		Amount:      PayPalAmount{CurrencyCode: p.currency, Value: FormatAmount(amount)},
		ReturnURL:   req.SuccessURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("paypal order created", "order_id", remote.ID, "status", remote.Status, "trip", req.TripName)

	customer := req.Customer.Clean(p.clean)
	customer.TripName = req.TripName

	stored, err := p.store.Upsert(ctx, &model.PaymentOrder{
		OrderID:    remote.ID,
		Gateway:    model.GatewayPull,
		PaymentRef: remote.ID,
		Amount:     amount,
		Currency:   p.currency,
		Status:     remote.Status,
		Customer:   customer,
	})
	if err != nil {
		return nil, fmt.Errorf("save paypal order: %w", err)
	}
	return stored, nil
}

// CheckStatus reconciles a stored order against the remote gateway. Anything other than a
// completed remote order is removed locally and reported as NOT_FOUND; an approved but
// uncaptured order is voided first so its fund hold is released.
func (p *PayPal) CheckStatus(ctx context.Context, order *model.PaymentOrder) (model.PullStatus, error) {
	key := order.Key()

	remote, err := p.api.GetOrder(ctx, order.OrderID)
	if err != nil {
		slog.Error("paypal order check failed", "order_id", order.OrderID, "error", err)
		return p.discard(ctx, key)
	}

	switch status := model.PullStatus(remote.Status); status {
	case model.PullApproved:
		if err := p.api.VoidOrder(ctx, order.OrderID); err != nil {
			slog.Error("failed to void paypal order", "order_id", order.OrderID, "error", err)
		} else {
			slog.Info("voided stale paypal order", "order_id", order.OrderID)
		}
		return p.discard(ctx, key)

	case model.PullCompleted:
		if model.PullStatus(order.Status) != model.PullCompleted {
			synced := *order
			synced.Status = string(model.PullCompleted)
			if _, err := p.store.Upsert(ctx, &synced); err != nil {
				return "", fmt.Errorf("sync paypal order: %w", err)
			}
		}
		return model.PullCompleted, nil

	default:
		slog.Info("discarding unusable paypal order", "order_id", order.OrderID, "status", status)
		return p.discard(ctx, key)
	}
}

func (p *PayPal) discard(ctx context.Context, key model.OrderKey) (model.PullStatus, error) {
	if err := p.store.Delete(ctx, key); err != nil {
		return "", err
	}
	return model.PullNotFound, nil
}

type CaptureRequest struct {
	OrderID     string         `json:"orderId"`
	TripName    string         `json:"tripName"`
	Customer    model.Customer `json:"customer"`
	AmountMinor int64          `json:"amount"`
}

// CaptureOrAuthorize finalizes an order the buyer approved. A locally finalized order is
// returned from the store without another remote call.
func (p *PayPal) CaptureOrAuthorize(ctx context.Context, req CaptureRequest) (model.PullStatus, error) {
	req.OrderID = p.clean(req.OrderID)
	req.TripName = p.clean(req.TripName)
	if req.OrderID == "" {
		return "", &ValidationError{Fields: []string{"orderId"}}
	}
	key := model.OrderKey{OrderID: req.OrderID, Gateway: model.GatewayPull}

	existing, err := p.store.Find(ctx, key)
	switch {
	case err == nil:
		if status := model.PullStatus(existing.Status); status.Finalized() {
			slog.Info("paypal payment already finalized", "order_id", req.OrderID, "status", status)
			return status, nil
		}
	case !errors.Is(err, ErrOrderNotFound):
		return "", fmt.Errorf("lookup paypal order: %w", err)
	}

	remote, err := p.api.GetOrder(ctx, req.OrderID)
	if err != nil {
		return p.dropUncertain(ctx, key, err)
	}

	if model.PullStatus(remote.Status) == model.PullCreated {
		remote, err = p.api.AuthorizeOrder(ctx, req.OrderID)
		if err != nil {
			return p.dropUncertain(ctx, key, err)
		}
		slog.Info("paypal order authorized", "order_id", req.OrderID, "status", remote.Status)
	}

	order := &model.PaymentOrder{
		OrderID:    req.OrderID,
		Gateway:    model.GatewayPull,
		PaymentRef: remote.ID,
		Amount:     minorToMajor(req.AmountMinor),
		Currency:   p.currency,
		Status:     remote.Status,
	}
	if amt, ok := remote.Amount(); ok {
		if v, err := decimal.NewFromString(amt.Value); err == nil {
			order.Amount = v
		}
		if amt.CurrencyCode != "" {
			order.Currency = amt.CurrencyCode
		}
	}
	if existing != nil {
		order.Customer = existing.Customer
		order.CreatedAt = existing.CreatedAt
	} else {
		order.Customer = req.Customer.Clean(p.clean)
		order.Customer.TripName = req.TripName
	}

	stored, err := p.store.Upsert(ctx, order)
	if err != nil {
		return "", fmt.Errorf("save paypal order: %w", err)
	}
	slog.Info("paypal payment saved",
		"order_id", stored.OrderID,
		"amount", FormatAmount(stored.Amount),
		"status", stored.Status,
	)
	return model.PullStatus(stored.Status), nil
}

// dropUncertain handles a failed remote call during capture. A local record still short
// of authorization is removed. A record a concurrent capture already moved to AUTHORIZED
// or beyond is kept, and its status is returned in place of remoteErr.
func (p *PayPal) dropUncertain(ctx context.Context, key model.OrderKey, remoteErr error) (model.PullStatus, error) {
	_, err := p.store.DeleteWhere(ctx, DeleteCriteria{
		Gateway:  model.GatewayPull,
		OrderID:  key.OrderID,
		Statuses: pendingPullStatuses,
	})
	if err != nil {
		slog.Error("failed to drop uncertain paypal order", "order_id", key.OrderID, "error", err)
		return "", remoteErr
	}

	current, err := p.store.Find(ctx, key)
	if err != nil {
		return "", remoteErr
	}
	status := model.PullStatus(current.Status)
	slog.Info("paypal order settled by concurrent capture",
		"order_id", key.OrderID,
		"status", status,
		"remote_error", remoteErr,
	)
	return status, nil
}

// ClearTrip removes pending or approved local records for a trip, voiding an approved
// remote order first. Void failures never block the local cleanup.
func (p *PayPal) ClearTrip(ctx context.Context, tripName string) error {
	latest, err := p.store.FindLatestByTrip(ctx, tripName, model.GatewayPull)
	switch {
	case err == nil:
		if model.PullStatus(latest.Status) == model.PullApproved {
			if err := p.api.VoidOrder(ctx, latest.OrderID); err != nil {
				slog.Error("paypal void error", "order_id", latest.OrderID, "error", err)
			} else {
				slog.Info("voided paypal order", "order_id", latest.OrderID)
			}
		}
	case !errors.Is(err, ErrOrderNotFound):
		return fmt.Errorf("lookup trip order: %w", err)
	}

	n, err := p.store.DeleteWhere(ctx, DeleteCriteria{
		Gateway:  model.GatewayPull,
		TripName: tripName,
		Statuses: pendingPullStatuses,
	})
	if err != nil {
		return fmt.Errorf("clear trip orders: %w", err)
	}
	if n > 0 {
		slog.Info("cleared pending paypal orders", "trip", tripName, "count", n)
	}
	return nil
}
