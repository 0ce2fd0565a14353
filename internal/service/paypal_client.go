package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// maxCallAttempts bounds how often a PayPal call is sent when the access token is rejected.
const maxCallAttempts = 2

type PayPalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type PayPalPurchaseUnit struct {
	Amount      PayPalAmount `json:"amount"`
	Description string       `json:"description,omitempty"`
}

type PayPalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []PayPalPurchaseUnit `json:"purchase_units"`
}

// Amount returns the first purchase unit amount, if the gateway reported one.
func (o *PayPalOrder) Amount() (PayPalAmount, bool) {
	if len(o.PurchaseUnits) == 0 || o.PurchaseUnits[0].Amount.Value == "" {
		return PayPalAmount{}, false
	}
	return o.PurchaseUnits[0].Amount, true
}

type applicationContext struct {
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	UserAction string `json:"user_action"`
}

type createOrderBody struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []PayPalPurchaseUnit `json:"purchase_units"`
	ApplicationContext applicationContext   `json:"application_context"`
}

type NewPayPalOrder struct {
	Description string
	Amount      PayPalAmount
	ReturnURL   string
	CancelURL   string
}

// PayPalClient talks to the PayPal Orders v2 REST API. It is safe for concurrent use
// and holds no per-request state.
type PayPalClient struct {
	baseURL string
	client  *http.Client
	creds   *clientcredentials.Config
	tokens  oauth2.TokenSource
}

func NewPayPalClient(baseURL, clientID, clientSecret string) *PayPalClient {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := &http.Client{Timeout: 15 * time.Second}
	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return &PayPalClient{
		baseURL: baseURL,
		client:  httpClient,
		creds:   creds,
		tokens:  creds.TokenSource(tokenCtx),
	}
}

func (c *PayPalClient) CreateOrder(ctx context.Context, o NewPayPalOrder) (*PayPalOrder, error) {
	body := createOrderBody{
		Intent: "AUTHORIZE",
		PurchaseUnits: []PayPalPurchaseUnit{{
			Amount:      o.Amount,
			Description: o.Description,
		}},
		ApplicationContext: applicationContext{
			ReturnURL:  o.ReturnURL,
			CancelURL:  o.CancelURL,
			UserAction: "CONTINUE",
		},
	}
	var out PayPalOrder
	if err := c.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}
	return &out, nil
}

func (c *PayPalClient) GetOrder(ctx context.Context, id string) (*PayPalOrder, error) {
	var out PayPalOrder
	if err := c.call(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("get paypal order %s: %w", id, err)
	}
	return &out, nil
}

func (c *PayPalClient) AuthorizeOrder(ctx context.Context, id string) (*PayPalOrder, error) {
	var out PayPalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(id) + "/authorize"
	if err := c.call(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("authorize paypal order %s: %w", id, err)
	}
	return &out, nil
}

func (c *PayPalClient) VoidOrder(ctx context.Context, id string) error {
	path := "/v2/checkout/orders/" + url.PathEscape(id) + "/void"
	if err := c.call(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("void paypal order %s: %w", id, err)
	}
	return nil
}

// isSessionExpired is the only condition under which a call is repeated.
func isSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

func (c *PayPalClient) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var err error
	for attempt := 1; attempt <= maxCallAttempts; attempt++ {
		err = c.send(ctx, method, path, payload, out, attempt > 1)
		if err == nil || !isSessionExpired(err) {
			return err
		}
		slog.Warn("paypal rejected access token", "path", path, "attempt", attempt)
	}
	return err
}

func (c *PayPalClient) send(ctx context.Context, method, path string, payload []byte, out any, freshToken bool) error {
	tok, err := c.token(ctx, freshToken)
	if err != nil {
		return fmt.Errorf("%w: access token: %w", ErrRemoteGateway, err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do request: %w", ErrRemoteGateway, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrSessionExpired
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrRemoteGateway, err)
		}
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: unexpected status: %d, body: %s", ErrRemoteGateway, resp.StatusCode, string(msg))
	}
}

func (c *PayPalClient) token(ctx context.Context, fresh bool) (*oauth2.Token, error) {
	if fresh {
		return c.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, c.client))
	}
	return c.tokens.Token()
}
