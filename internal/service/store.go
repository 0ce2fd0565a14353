package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"travelpay/internal/model"
)

// OrderStore is the single source of truth for payment orders.
type OrderStore interface {
	Upsert(ctx context.Context, order *model.PaymentOrder) (*model.PaymentOrder, error)
	Find(ctx context.Context, key model.OrderKey) (*model.PaymentOrder, error)
	FindLatestByTrip(ctx context.Context, tripName string, gateway model.GatewayType) (*model.PaymentOrder, error)
	Delete(ctx context.Context, key model.OrderKey) error
	DeleteWhere(ctx context.Context, c DeleteCriteria) (int64, error)
}

// DeleteCriteria selects orders for cleanup. Gateway and Statuses are required;
// zero OrderID, TripName and CreatedBefore are not applied.
type DeleteCriteria struct {
	Gateway       model.GatewayType
	Statuses      []string
	OrderID       string
	TripName      string
	CreatedBefore time.Time
}

type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

const paymentColumns = `id, order_id, gateway_type, merchant_id, payment_ref, amount, currency, status, signature, customer, created_at`

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Upsert writes the order in a single conditional statement. The existing row is only
// replaced when it belongs to the same gateway and the new status does not rank lower;
// the customer snapshot and created_at are never overwritten. The stored record is returned.
func (s *PaymentStore) Upsert(ctx context.Context, o *model.PaymentOrder) (*model.PaymentOrder, error) {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return nil, fmt.Errorf("encode customer: %w", err)
	}

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`, status_rank, trip_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO UPDATE SET
			merchant_id = EXCLUDED.merchant_id,
			payment_ref = EXCLUDED.payment_ref,
			amount      = EXCLUDED.amount,
			currency    = EXCLUDED.currency,
			status      = EXCLUDED.status,
			signature   = EXCLUDED.signature,
			status_rank = EXCLUDED.status_rank
		WHERE payments.gateway_type = EXCLUDED.gateway_type
		  AND payments.status_rank <= EXCLUDED.status_rank
		RETURNING `+paymentColumns,
		uuid.NewString(), o.OrderID, string(o.Gateway), o.MerchantID, o.PaymentRef,
		o.Amount, o.Currency, o.Status, o.Signature, string(customer), createdAt,
		o.StatusRank(), o.Customer.TripName,
	)

	stored, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Write suppressed by the guard; report what is actually stored.
		current, ferr := s.Find(ctx, o.Key())
		if errors.Is(ferr, ErrOrderNotFound) {
			return nil, ErrOrderIDTaken
		}
		return current, ferr
	}
	if err != nil {
		return nil, unavailable("upsert payment", err)
	}
	return stored, nil
}

func (s *PaymentStore) Find(ctx context.Context, key model.OrderKey) (*model.PaymentOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 AND gateway_type = $2`,
		key.OrderID, string(key.Gateway),
	)
	o, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, unavailable("find payment", err)
	}
	return o, nil
}

func (s *PaymentStore) FindLatestByTrip(ctx context.Context, tripName string, gateway model.GatewayType) (*model.PaymentOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE trip_name = $1 AND gateway_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, tripName, string(gateway))
	o, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, unavailable("find latest payment", err)
	}
	return o, nil
}

func (s *PaymentStore) Delete(ctx context.Context, key model.OrderKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM payments WHERE order_id = $1 AND gateway_type = $2`,
		key.OrderID, string(key.Gateway),
	)
	if err != nil {
		return unavailable("delete payment", err)
	}
	return nil
}

func (s *PaymentStore) DeleteWhere(ctx context.Context, c DeleteCriteria) (int64, error) {
	if !c.Gateway.Valid() || len(c.Statuses) == 0 {
		return 0, &ValidationError{Fields: []string{"gateway", "statuses"}}
	}

	conds := []string{"gateway_type = $1", "status = ANY($2)"}
	args := []any{string(c.Gateway), c.Statuses}
	if c.OrderID != "" {
		args = append(args, c.OrderID)
		conds = append(conds, fmt.Sprintf("order_id = $%d", len(args)))
	}
	if c.TripName != "" {
		args = append(args, c.TripName)
		conds = append(conds, fmt.Sprintf("trip_name = $%d", len(args)))
	}
	if !c.CreatedBefore.IsZero() {
		args = append(args, c.CreatedBefore)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE `+strings.Join(conds, " AND "), args...)
	if err != nil {
		return 0, unavailable("delete payments", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete payments", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*model.PaymentOrder, error) {
	var (
		o         model.PaymentOrder
		gateway   string
		merchant  sql.NullString
		ref       sql.NullString
		signature sql.NullString
		customer  []byte
	)
	if err := row.Scan(&o.ID, &o.OrderID, &gateway, &merchant, &ref, &o.Amount, &o.Currency,
		&o.Status, &signature, &customer, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Gateway = model.GatewayType(gateway)
	o.MerchantID = merchant.String
	o.PaymentRef = ref.String
	o.Signature = signature.String
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &o.Customer); err != nil {
			return nil, fmt.Errorf("decode customer: %w", err)
		}
	}
	return &o, nil
}
