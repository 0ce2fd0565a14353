package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GatewayType identifies which integration style produced an order.
type GatewayType string

const (
	// GatewayPush is the redirect gateway that confirms via signed notification.
	GatewayPush GatewayType = "PayHere"
	// GatewayPull is the REST gateway driven by create/authorize calls and polled for status.
	GatewayPull GatewayType = "PayPal"
)

func (g GatewayType) Valid() bool {
	return g == GatewayPush || g == GatewayPull
}

// OrderKey is the identity of a stored payment order.
type OrderKey struct {
	OrderID string
	Gateway GatewayType
}

type PaymentOrder struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Gateway    GatewayType     `json:"payment_type"`
	MerchantID string          `json:"merchant_id,omitempty"`
	PaymentRef string          `json:"payment_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	Signature  string          `json:"signature,omitempty"`
	Customer   Customer        `json:"customer"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (o *PaymentOrder) Key() OrderKey {
	return OrderKey{OrderID: o.OrderID, Gateway: o.Gateway}
}

// StatusRank orders statuses within the order's own gateway vocabulary.
func (o *PaymentOrder) StatusRank() int {
	switch o.Gateway {
	case GatewayPush:
		return PushStatus(o.Status).Rank()
	case GatewayPull:
		return PullStatus(o.Status).Rank()
	default:
		return 0
	}
}

// Customer is the booking contact snapshot captured when the order is created.
type Customer struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	Country         string `json:"country"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
	DeliveryCity    string `json:"delivery_city,omitempty"`
	DeliveryCountry string `json:"delivery_country,omitempty"`
	TripName        string `json:"tripName"`
}

// Clean returns a copy with every field passed through clean.
func (c Customer) Clean(clean func(string) string) Customer {
	return Customer{
		FirstName:       clean(c.FirstName),
		LastName:        clean(c.LastName),
		Email:           clean(c.Email),
		Phone:           clean(c.Phone),
		Address:         clean(c.Address),
		City:            clean(c.City),
		Country:         clean(c.Country),
		DeliveryAddress: clean(c.DeliveryAddress),
		DeliveryCity:    clean(c.DeliveryCity),
		DeliveryCountry: clean(c.DeliveryCountry),
		TripName:        clean(c.TripName),
	}
}
