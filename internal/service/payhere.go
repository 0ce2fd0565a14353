package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"travelpay/internal/model"
)

// Notification outcomes reported back to the redirect gateway.
const (
	NotifyAccepted         = "notified"
	NotifyAlreadyProcessed = "already_processed"
)

// PayHere is the redirect + notify gateway adapter. It holds configuration only.
type PayHere struct {
	merchantID string
	secret     string
	store      OrderStore
	clean      func(string) string
}

// NewPayHere builds the adapter. An empty merchantID accepts any merchant id the client sends;
// an empty secret makes every operation fail with ErrNotConfigured.
func NewPayHere(merchantID, secret string, store OrderStore, clean func(string) string) *PayHere {
	if clean == nil {
		clean = strings.TrimSpace
	}
	return &PayHere{merchantID: merchantID, secret: secret, store: store, clean: clean}
}

type CheckoutRequest struct {
	MerchantID string         `json:"merchant_id"`
	OrderID    string         `json:"order_id"`
	Amount     string         `json:"amount"`
	Currency   string         `json:"currency"`
	Items      string         `json:"items"`
	ReturnURL  string         `json:"return_url"`
	CancelURL  string         `json:"cancel_url"`
	NotifyURL  string         `json:"notify_url"`
	Customer   model.Customer `json:"-"`
}

// Checkout is what the client posts to the gateway's hosted page.
type Checkout struct {
	OrderID         string `json:"order_id"`
	Amount          string `json:"amount"`
	Hash            string `json:"hash"`
	CustomerPayload string `json:"custom_1"`
}

// Initiate validates the booking and returns the outbound hash. Nothing is persisted:
// an order only exists once the gateway confirms payment.
func (p *PayHere) Initiate(req CheckoutRequest) (*Checkout, error) {
	req = p.cleanCheckout(req)

	err := requireFields(map[string]string{
		"merchant_id": req.MerchantID,
		"order_id":    req.OrderID,
		"amount":      req.Amount,
		"currency":    req.Currency,
		"items":       req.Items,
		"return_url":  req.ReturnURL,
		"cancel_url":  req.CancelURL,
		"notify_url":  req.NotifyURL,
		"first_name":  req.Customer.FirstName,
		"email":       req.Customer.Email,
	}, "merchant_id", "order_id", "amount", "currency", "items",
		"return_url", "cancel_url", "notify_url", "first_name", "email")
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, &ValidationError{Fields: []string{"amount"}}
	}
	if p.merchantID != "" && req.MerchantID != p.merchantID {
		return nil, &ValidationError{Fields: []string{"merchant_id"}}
	}
	if p.secret == "" {
		return nil, fmt.Errorf("payhere initiate: %w", ErrNotConfigured)
	}

	customer := req.Customer
	customer.TripName = req.Items
	payload, err := json.Marshal(customer)
	if err != nil {
		return nil, fmt.Errorf("encode customer payload: %w", err)
	}

	hash := Sign(SignatureFields{
		MerchantID: req.MerchantID,
		OrderID:    req.OrderID,
		Amount:     amount,
		Currency:   req.Currency,
	}, p.secret)

	slog.Info("payhere payment initiated",
		"order_id", req.OrderID,
		"amount", FormatAmount(amount),
		"currency", req.Currency,
		"items", req.Items,
	)

	return &Checkout{
		OrderID:         req.OrderID,
		Amount:          FormatAmount(amount),
		Hash:            hash,
		CustomerPayload: string(payload),
	}, nil
}

func (p *PayHere) cleanCheckout(req CheckoutRequest) CheckoutRequest {
	req.MerchantID = p.clean(req.MerchantID)
	req.OrderID = p.clean(req.OrderID)
	req.Amount = strings.TrimSpace(req.Amount)
	req.Currency = p.clean(req.Currency)
	req.Items = p.clean(req.Items)
	req.ReturnURL = p.clean(req.ReturnURL)
	req.CancelURL = p.clean(req.CancelURL)
	req.NotifyURL = p.clean(req.NotifyURL)
	req.Customer = req.Customer.Clean(p.clean)
	return req
}

// Notification is the form posted by the gateway to the notify URL.
type Notification struct {
	MerchantID      string
	OrderID         string
	PaymentID       string
	Amount          string
	Currency        string
	StatusCode      string
	Signature       string
	CustomerPayload string
}

type NotificationResult struct {
	Status        string           `json:"status"`
	PaymentStatus model.PushStatus `json:"-"`
}

// HandleNotification verifies and applies an unsolicited gateway notification.
// Only successful payments are persisted, and a repeated success is acknowledged
// without writing a second record.
func (p *PayHere) HandleNotification(ctx context.Context, n Notification) (*NotificationResult, error) {
	err := requireFields(map[string]string{
		"merchant_id":      n.MerchantID,
		"order_id":         n.OrderID,
		"payment_id":       n.PaymentID,
		"payhere_amount":   n.Amount,
		"payhere_currency": n.Currency,
		"status_code":      n.StatusCode,
		"md5sig":           n.Signature,
	}, "merchant_id", "order_id", "payment_id", "payhere_amount", "payhere_currency", "status_code", "md5sig")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}
	// The digest covers the amount as formatted text, so only the canonical two-decimal
	// form is accepted. Anything that would round to it is rejected.
	amount, err := decimal.NewFromString(n.Amount)
	if err != nil || amount.Sign() <= 0 || FormatAmount(amount) != n.Amount {
		return nil, fmt.Errorf("%w: payhere_amount %q", ErrMalformedNotification, n.Amount)
	}
	if p.secret == "" {
		return nil, fmt.Errorf("payhere notification: %w", ErrNotConfigured)
	}

	fields := SignatureFields{
		MerchantID: n.MerchantID,
		OrderID:    n.OrderID,
		Amount:     amount,
		Currency:   n.Currency,
		StatusCode: n.StatusCode,
	}
	if err := VerifySignature(fields, p.secret, n.Signature); err != nil {
		slog.Warn("payhere signature rejected",
			"event", "signature_mismatch",
			"order_id", n.OrderID,
			"payment_id", n.PaymentID,
			"merchant_id", n.MerchantID,
		)
		return nil, err
	}

	status := model.PushStatusFromCode(n.StatusCode)
	res := &NotificationResult{Status: NotifyAccepted, PaymentStatus: status}

	if status != model.PushSuccess {
		slog.Info("payhere payment not successful",
			"order_id", n.OrderID,
			"payment_id", n.PaymentID,
			"status", status,
			"status_code", n.StatusCode,
		)
		return res, nil
	}

	key := model.OrderKey{OrderID: n.OrderID, Gateway: model.GatewayPush}
	_, err = p.store.Find(ctx, key)
	switch {
	case err == nil:
		slog.Info("payhere payment already processed", "order_id", n.OrderID, "payment_id", n.PaymentID)
		res.Status = NotifyAlreadyProcessed
		return res, nil
	case !errors.Is(err, ErrOrderNotFound):
		return nil, fmt.Errorf("lookup payhere order: %w", err)
	}

	stored, err := p.store.Upsert(ctx, &model.PaymentOrder{
		OrderID:    n.OrderID,
		Gateway:    model.GatewayPush,
		MerchantID: n.MerchantID,
		PaymentRef: n.PaymentID,
		Amount:     amount,
		Currency:   n.Currency,
		Status:     string(model.PushSuccess),
		Signature:  strings.ToUpper(n.Signature),
		Customer:   p.decodeCustomer(n),
	})
	if err != nil {
		return nil, fmt.Errorf("save payhere order: %w", err)
	}

	slog.Info("payhere payment saved",
		"order_id", stored.OrderID,
		"payment_id", stored.PaymentRef,
		"amount", FormatAmount(stored.Amount),
		"status", stored.Status,
	)
	return res, nil
}

// decodeCustomer parses the opaque customer payload echoed by the gateway.
// A payment is still recorded when the payload is missing or unreadable.
func (p *PayHere) decodeCustomer(n Notification) model.Customer {
	var c model.Customer
	if n.CustomerPayload == "" {
		return c
	}
	if err := json.Unmarshal([]byte(n.CustomerPayload), &c); err != nil {
		slog.Warn("unreadable payhere customer payload", "order_id", n.OrderID, "error", err)
		return model.Customer{}
	}
	return c.Clean(p.clean)
}
