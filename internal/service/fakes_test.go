package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"travelpay/internal/model"
)

// memStore mirrors PaymentStore semantics in memory.
type memStore struct {
	mu     sync.Mutex
	orders map[string]model.PaymentOrder
	seq    int
	fail   error
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]model.PaymentOrder)}
}

func (s *memStore) Upsert(_ context.Context, o *model.PaymentOrder) (*model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, unavailable("upsert payment", s.fail)
	}

	cur, ok := s.orders[o.OrderID]
	if ok {
		if cur.Gateway != o.Gateway {
			return nil, ErrOrderIDTaken
		}
		if cur.StatusRank() > o.StatusRank() {
			out := cur
			return &out, nil
		}
		next := *o
		next.ID = cur.ID
		next.Customer = cur.Customer
		next.CreatedAt = cur.CreatedAt
		s.orders[o.OrderID] = next
		return &next, nil
	}

	s.seq++
	next := *o
	next.ID = fmt.Sprintf("row-%d", s.seq)
	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Unix(int64(s.seq), 0)
	}
	s.orders[o.OrderID] = next
	return &next, nil
}

func (s *memStore) Find(_ context.Context, key model.OrderKey) (*model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, unavailable("find payment", s.fail)
	}
	o, ok := s.orders[key.OrderID]
	if !ok || o.Gateway != key.Gateway {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (s *memStore) FindLatestByTrip(_ context.Context, trip string, gw model.GatewayType) (*model.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, unavailable("find latest payment", s.fail)
	}
	var latest *model.PaymentOrder
	for _, o := range s.orders {
		if o.Gateway != gw || o.Customer.TripName != trip {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			o := o
			latest = &o
		}
	}
	if latest == nil {
		return nil, ErrOrderNotFound
	}
	return latest, nil
}

func (s *memStore) Delete(_ context.Context, key model.OrderKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return unavailable("delete payment", s.fail)
	}
	if o, ok := s.orders[key.OrderID]; ok && o.Gateway == key.Gateway {
		delete(s.orders, key.OrderID)
	}
	return nil
}

func (s *memStore) DeleteWhere(_ context.Context, c DeleteCriteria) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, unavailable("delete payments", s.fail)
	}
	var n int64
	for id, o := range s.orders {
		if o.Gateway != c.Gateway || !slices.Contains(c.Statuses, o.Status) {
			continue
		}
		if c.OrderID != "" && o.OrderID != c.OrderID {
			continue
		}
		if c.TripName != "" && o.Customer.TripName != c.TripName {
			continue
		}
		if !c.CreatedBefore.IsZero() && !o.CreatedAt.Before(c.CreatedBefore) {
			continue
		}
		delete(s.orders, id)
		n++
	}
	return n, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// fakePayPal is an in-process PayPal Orders v2 server.
type fakePayPal struct {
	mu          sync.Mutex
	orders      map[string]*PayPalOrder
	calls       map[string]int
	tokens      int
	seq         int
	expireNext  bool
	rejectAll   bool
	failGet     bool
	failVoid    bool
	authorizeTo string
}

func newFakePayPal(t *testing.T) (*fakePayPal, *PayPalClient) {
	t.Helper()

	f := &fakePayPal{
		orders:      make(map[string]*PayPalOrder),
		calls:       make(map[string]int),
		authorizeTo: string(model.PullCompleted),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokens++
		n := f.tokens
		f.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders", f.guard("create", func(w http.ResponseWriter, r *http.Request) {
		var body createOrderBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Intent != "AUTHORIZE" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.seq++
		o := &PayPalOrder{
			ID:            fmt.Sprintf("PP-%d", f.seq),
			Status:        string(model.PullCreated),
			PurchaseUnits: body.PurchaseUnits,
		}
		f.orders[o.ID] = o
		out := *o
		f.mu.Unlock()
		writeTestJSON(w, http.StatusCreated, out)
	}))
	mux.HandleFunc("GET /v2/checkout/orders/{id}", f.guard("get", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		o, ok := f.orders[r.PathValue("id")]
		fail := f.failGet
		var out PayPalOrder
		if ok {
			out = *o
		}
		f.mu.Unlock()
		switch {
		case fail:
			w.WriteHeader(http.StatusInternalServerError)
		case !ok:
			w.WriteHeader(http.StatusNotFound)
		default:
			writeTestJSON(w, http.StatusOK, out)
		}
	}))
	mux.HandleFunc("POST /v2/checkout/orders/{id}/authorize", f.guard("authorize", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		o, ok := f.orders[r.PathValue("id")]
		var out PayPalOrder
		if ok {
			o.Status = f.authorizeTo
			out = *o
		}
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeTestJSON(w, http.StatusCreated, out)
	}))
	mux.HandleFunc("POST /v2/checkout/orders/{id}/void", f.guard("void", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		o, ok := f.orders[r.PathValue("id")]
		fail := f.failVoid
		if ok && !fail {
			o.Status = string(model.PullVoided)
		}
		f.mu.Unlock()
		if fail || !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return f, NewPayPalClient(srv.URL, "client-id", "client-secret")
}

func (f *fakePayPal) guard(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[op]++
		expire := f.expireNext || f.rejectAll
		f.expireNext = false
		f.mu.Unlock()
		if expire || r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakePayPal) update(fn func(*fakePayPal)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePayPal) setStatus(id string, status model.PullStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].Status = string(status)
}

func (f *fakePayPal) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePayPal) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		return o.Status
	}
	return ""
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// createDirect registers an order as if another client had created it.
func (f *fakePayPal) createDirect(value string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("PP-EXT-%d", f.seq)
	f.orders[id] = &PayPalOrder{
		ID:     id,
		Status: string(model.PullCreated),
		PurchaseUnits: []PayPalPurchaseUnit{{
			Amount: PayPalAmount{CurrencyCode: "USD", Value: value},
		}},
	}
	return id, nil
}
