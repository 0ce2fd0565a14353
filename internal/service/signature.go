package service

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// SignatureFields are the values covered by the redirect gateway digest, in signing order.
// StatusCode is empty for the outbound checkout hash.
type SignatureFields struct {
	MerchantID string
	OrderID    string
	Amount     decimal.Decimal
	Currency   string
	StatusCode string
}

// FormatAmount renders an amount the way the gateway signs it: exactly two decimals.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func upperMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Sign computes UPPER(MD5(merchant_id || order_id || amount || currency || status_code || UPPER(MD5(secret)))).
func Sign(f SignatureFields, secret string) string {
	var b strings.Builder
	b.WriteString(f.MerchantID)
	b.WriteString(f.OrderID)
	b.WriteString(FormatAmount(f.Amount))
	b.WriteString(f.Currency)
	b.WriteString(f.StatusCode)
	b.WriteString(upperMD5(secret))
	return upperMD5(b.String())
}

// VerifySignature recomputes the digest and compares it to presented in constant time.
func VerifySignature(f SignatureFields, secret, presented string) error {
	want := Sign(f, secret)
	got := strings.ToUpper(strings.TrimSpace(presented))
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
