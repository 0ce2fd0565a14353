package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"travelpay/internal/model"
	"travelpay/internal/service"
)

// Payments is the reconciliation surface the payment routes call into.
type Payments interface {
	InitiateCheckout(req service.CheckoutRequest) (*service.Checkout, error)
	Notify(ctx context.Context, n service.Notification) (*service.NotificationResult, error)
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*model.PaymentOrder, error)
	Capture(ctx context.Context, req service.CaptureRequest) (service.StatusView, error)
	OrderStatus(ctx context.Context, tripName string, gateway model.GatewayType) (service.StatusView, error)
	ClearOrder(ctx context.Context, tripName string, gateway model.GatewayType) error
}

type initiateRequest struct {
	MerchantID      string      `json:"merchant_id"`
	OrderID         string      `json:"order_id"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	Items           string      `json:"items"`
	ReturnURL       string      `json:"return_url"`
	CancelURL       string      `json:"cancel_url"`
	NotifyURL       string      `json:"notify_url"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	Address         string      `json:"address"`
	City            string      `json:"city"`
	Country         string      `json:"country"`
	DeliveryAddress string      `json:"delivery_address"`
	DeliveryCity    string      `json:"delivery_city"`
	DeliveryCountry string      `json:"delivery_country"`
}

func (r initiateRequest) checkout() service.CheckoutRequest {
	return service.CheckoutRequest{
		MerchantID: r.MerchantID,
		OrderID:    r.OrderID,
		Amount:     r.Amount.String(),
		Currency:   r.Currency,
		Items:      r.Items,
		ReturnURL:  r.ReturnURL,
		CancelURL:  r.CancelURL,
		NotifyURL:  r.NotifyURL,
		Customer: model.Customer{
			FirstName:       r.FirstName,
			LastName:        r.LastName,
			Email:           r.Email,
			Phone:           r.Phone,
			Address:         r.Address,
			City:            r.City,
			Country:         r.Country,
			DeliveryAddress: r.DeliveryAddress,
			DeliveryCity:    r.DeliveryCity,
			DeliveryCountry: r.DeliveryCountry,
		},
	}
}

func InitiatePayHereHandler(svc Payments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req initiateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, checkoutFailed)
			return
		}

		out, err := svc.InitiateCheckout(req.checkout())
		if err != nil {
			writeError(w, r, err, checkoutFailed)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"status":   "initiated",
			"hash":     out.Hash,
			"amount":   out.Amount,
			"custom_1": out.CustomerPayload,
		})
	}
}

// NotifyPayHereHandler receives the gateway's server-to-server callback. It carries no
// session and is authenticated only by its signature.
func NotifyPayHereHandler(svc Payments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
		if err := r.ParseForm(); err != nil {
			writeError(w, r, &service.ValidationError{Fields: []string{"form"}}, "invalid notification")
			return
		}

		res, err := svc.Notify(r.Context(), service.Notification{
			MerchantID:      r.PostForm.Get("merchant_id"),
			OrderID:         r.PostForm.Get("order_id"),
			PaymentID:       r.PostForm.Get("payment_id"),
			Amount:          r.PostForm.Get("payhere_amount"),
			Currency:        r.PostForm.Get("payhere_currency"),
			StatusCode:      r.PostForm.Get("status_code"),
			Signature:       r.PostForm.Get("md5sig"),
			CustomerPayload: r.PostForm.Get("custom_1"),
		})
		if err != nil {
			writeError(w, r, err, "failed to process notification")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": res.Status})
	}
}

func CreatePayPalOrderHandler(svc Payments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, checkoutFailed)
			return
		}

		order, err := svc.CreateOrder(r.Context(), req)
		if err != nil {
			writeError(w, r, err, checkoutFailed)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"orderId": order.OrderID, "status": order.Status})
	}
}

func CapturePayPalHandler(svc Payments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CaptureRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, checkoutFailed)
			return
		}

		view, err := svc.Capture(r.Context(), req)
		if err != nil {
			writeError(w, r, err, checkoutFailed)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  view.GatewayStatus,
			"result":  view.Status,
		})
	}
}

func OrderStatusHandler(svc Payments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trip := chi.URLParam(r, "tripName")
		if unescaped, err := url.PathUnescape(trip); err == nil {
			trip = unescaped
		}

		gateway := model.GatewayPull
		if pt := r.URL.Query().Get("paymentType"); pt != "" {
			gateway = model.GatewayType(pt)
		}

		view, err := svc.OrderStatus(r.Context(), trip, gateway)
		if err != nil {
			writeError(w, r, err, "failed to check order status")
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

type clearOrderRequest struct {
	TripName    string `json:"tripName"`
	PaymentType string `json:"paymentType"`
}

func ClearOrderHandler(svc Payments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clearOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, "failed to clear order")
			return
		}

		if err := svc.ClearOrder(r.Context(), req.TripName, model.GatewayType(req.PaymentType)); err != nil {
			writeError(w, r, err, "failed to clear order")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order state cleared"})
	}
}
