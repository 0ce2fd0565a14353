package database

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    order_id TEXT NOT NULL UNIQUE,
    gateway_type TEXT NOT NULL CHECK (gateway_type IN ('PayHere', 'PayPal')),
    merchant_id TEXT,
    payment_ref TEXT,
    amount NUMERIC(12,2) NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    status_rank INT NOT NULL DEFAULT 0,
    signature TEXT,
    customer JSONB NOT NULL DEFAULT '{}'::jsonb,
    trip_name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payments_trip_gateway ON payments(trip_name, gateway_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_payments_gateway_status ON payments(gateway_type, status);
`

func InitSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
