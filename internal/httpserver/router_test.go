package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/broadcast"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository/kv"
	productrepo "storefront/internal/repository/product"
	"storefront/internal/seed"
	"storefront/internal/service/analytics"
	"storefront/internal/service/cart"
	"storefront/internal/service/checkout"
	productsvc "storefront/internal/service/product"
)

type stubGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *stubGateway) Process(_ context.Context, _ payment.Charge) (payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return payment.Result{}, g.err
	}
	return payment.Result{TransactionID: "TXN-HTTP", ProcessedAt: time.Now()}, nil
}

type testEnv struct {
	router  *gin.Engine
	gateway *stubGateway
	tracker *analytics.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := productrepo.NewMemory()
	if err := seed.Apply(context.Background(), repo); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := kv.New(kv.NewMemory(), 0, nil)
	carts := cart.NewSessions(store, broadcast.NewHub(), cart.DefaultOptions(), nil)
	t.Cleanup(carts.Close)
	gw := &stubGateway{}
	tracker := analytics.NewTracker(store, 0, nil)

	router, err := buildRouter(zap.NewNop(), Deps{
		Products: productsvc.New(repo),
		Carts:    carts,
		Checkout: checkout.New(carts, store, gw, pricing.DefaultPolicy(), tracker, nil),
		Tracker:  tracker,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return &testEnv{router: router, gateway: gw, tracker: tracker}
}

func (e *testEnv) do(t *testing.T, method, path, session string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func checkoutBody(key string) map[string]interface{} {
	return map[string]interface{}{
		"idempotencyKey": key,
		"confirmed":      true,
		"form": map[string]interface{}{
			"customer": map[string]string{
				"fullName":   "Lin Qian",
				"email":      "lin@example.com",
				"phone":      "081234567890",
				"address":    "Jl. Sudirman No. 10",
				"city":       "Tuban",
				"postalCode": "62311",
			},
			"shippingMethod": "regular",
			"paymentMethod":  "creditCard",
			"cardNumber":     "4532 0151 1283 0366",
			"expiryDate":     "12/99",
			"cvv":            "123",
		},
	}
}

func TestSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessionMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, sessionFrom(c))
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusBadRequest},
		{"invalid", "bad session!", http.StatusBadRequest},
		{"valid", "tab-1", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set(sessionHeader, tc.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, rec.Code)
		}
		if tc.status == http.StatusOK && rec.Body.String() != tc.header {
			t.Fatalf("expected session %q in context, got %q", tc.header, rec.Body.String())
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler([]ReadinessCheck{{Name: "redis", Check: func(context.Context) error { return errors.New("down") }}}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redis not reachable") {
		t.Fatalf("expected failing check named, got %s", rec.Body.String())
	}
}

func TestBuildRouterRequiresServices(t *testing.T) {
	if _, err := buildRouter(zap.NewNop(), Deps{}); err == nil {
		t.Fatalf("expected error for missing services")
	}
}

func TestProducts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/products", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != len(seed.Products()) {
		t.Fatalf("expected %d products, got %d", len(seed.Products()), list.Count)
	}

	if rec := env.do(t, http.MethodGet, "/products/qianlun-watch", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/products/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-watch", Quantity: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cr cartResponse
	decode(t, rec, &cr)
	if cr.ItemCount != 2 || cr.Total != 598000 {
		t.Fatalf("unexpected cart %+v", cr)
	}

	rec = env.do(t, http.MethodPatch, "/cart/items/qianlun-watch", "s1", map[string]int{"quantity": 5})
	decode(t, rec, &cr)
	if rec.Code != http.StatusOK || cr.ItemCount != 5 {
		t.Fatalf("unexpected update result %d %+v", rec.Code, cr)
	}

	if rec := env.do(t, http.MethodPatch, "/cart/items/unknown", "s1", map[string]int{"quantity": 1}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "ghost"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown product, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/cart/items", "s1", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/cart", "s2", nil)
	decode(t, rec, &cr)
	if len(cr.Items) != 0 {
		t.Fatalf("expected sessions to be isolated, got %+v", cr)
	}

	rec = env.do(t, http.MethodDelete, "/cart/items/qianlun-watch", "s1", nil)
	decode(t, rec, &cr)
	if rec.Code != http.StatusOK || len(cr.Items) != 0 {
		t.Fatalf("expected empty cart after remove, got %d %+v", rec.Code, cr)
	}

	events, err := env.tracker.Pending(context.Background(), "s1")
	if err != nil {
		t.Fatalf("pending events: %v", err)
	}
	if len(events) != 2 || events[0].Event != analytics.EventAddToCart || events[1].Event != analytics.EventRemoveFromCart {
		t.Fatalf("unexpected analytics events %+v", events)
	}
}

func TestAddHugeQuantityStaysPositive(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-watch", Quantity: 1})

	rec := env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-watch", Quantity: math.MaxInt})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var cr cartResponse
	decode(t, rec, &cr)
	if len(cr.Items) != 1 || cr.Items[0].Quantity != 99 || cr.ItemCount != 99 {
		t.Fatalf("expected quantity capped at 99, got %+v", cr)
	}
}

func TestCartCapacityConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := productrepo.NewMemory()
	if err := seed.Apply(context.Background(), repo); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := kv.New(kv.NewMemory(), 0, nil)
	carts := cart.NewSessions(store, nil, cart.Options{MaxItems: 1, MaxQuantityPerItem: 99}, nil)
	t.Cleanup(carts.Close)
	router, err := buildRouter(zap.NewNop(), Deps{
		Products: productsvc.New(repo),
		Carts:    carts,
		Checkout: checkout.New(carts, store, &stubGateway{}, pricing.DefaultPolicy(), nil, nil),
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	env := &testEnv{router: router}

	if rec := env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-watch"}); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-bag"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestQuoteAndPromo(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-watch"})

	rec := env.do(t, http.MethodPost, "/checkout/quote", "s1", quoteRequest{ShippingMethod: "regular"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var q struct {
		Totals struct {
			GrandTotal int64 `json:"grandTotal"`
		} `json:"totals"`
		ItemCount int `json:"itemCount"`
	}
	decode(t, rec, &q)
	if q.Totals.GrandTotal != 356890 || q.ItemCount != 1 {
		t.Fatalf("unexpected quote %+v", q)
	}

	if rec := env.do(t, http.MethodPost, "/checkout/quote", "s1", quoteRequest{ShippingMethod: "drone"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/checkout/promo", "s1", promoRequest{Code: "nope"})
	var out checkout.PromoOutcome
	decode(t, rec, &out)
	if rec.Code != http.StatusOK || out.Status != pricing.PromoUnknown {
		t.Fatalf("unexpected promo outcome %d %+v", rec.Code, out)
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/checkout/validate", "s1", map[string]string{"field": "email", "value": "broken"})
	var single struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message"`
	}
	decode(t, rec, &single)
	if rec.Code != http.StatusOK || single.Valid || single.Message == "" {
		t.Fatalf("unexpected field result %d %+v", rec.Code, single)
	}

	body := checkoutBody("")
	form := body["form"].(map[string]interface{})
	form["cvv"] = "1"
	rec = env.do(t, http.MethodPost, "/checkout/validate", "s1", map[string]interface{}{"form": form})
	var full struct {
		Valid        bool   `json:"valid"`
		FirstInvalid string `json:"firstInvalid"`
	}
	decode(t, rec, &full)
	if full.Valid || full.FirstInvalid != "cvv" {
		t.Fatalf("unexpected form result %+v", full)
	}

	if rec := env.do(t, http.MethodPost, "/checkout/validate", "s1", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodPost, "/checkout/orders", "s1", checkoutBody("k1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty cart, got %d", rec.Code)
	}

	env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-watch"})

	unconfirmed := checkoutBody("k1")
	unconfirmed["confirmed"] = false
	if rec := env.do(t, http.MethodPost, "/checkout/orders", "s1", unconfirmed); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 when not confirmed, got %d", rec.Code)
	}

	invalid := checkoutBody("k1")
	invalid["form"].(map[string]interface{})["cardNumber"] = "4532015112830367"
	rec := env.do(t, http.MethodPost, "/checkout/orders", "s1", invalid)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	var verr errorResponse
	decode(t, rec, &verr)
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "cardNumber" {
		t.Fatalf("unexpected field errors %+v", verr.Fields)
	}

	rec = env.do(t, http.MethodPost, "/checkout/orders", "s1", checkoutBody("ignored"), idempotencyHeader, "k1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var placed checkout.Placement
	decode(t, rec, &placed)
	if placed.Order.IdempotencyKey != "k1" || placed.Order.Totals.GrandTotal != 356890 {
		t.Fatalf("unexpected order %+v", placed.Order)
	}
	if placed.Order.Payment.CardLastFour != "0366" {
		t.Fatalf("expected card last four, got %q", placed.Order.Payment.CardLastFour)
	}

	rec = env.do(t, http.MethodPost, "/checkout/orders", "s1", checkoutBody("k1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for replay, got %d", rec.Code)
	}
	var replay checkout.Placement
	decode(t, rec, &replay)
	if !replay.Replayed || replay.Order.ID != placed.Order.ID || env.gateway.calls != 1 {
		t.Fatalf("expected replay without second charge, got %+v calls=%d", replay, env.gateway.calls)
	}

	rec = env.do(t, http.MethodGet, "/orders/last", "s1", nil)
	var last struct {
		ID string `json:"id"`
	}
	decode(t, rec, &last)
	if rec.Code != http.StatusOK || last.ID != placed.Order.ID {
		t.Fatalf("unexpected last order %d %+v", rec.Code, last)
	}
	if rec := env.do(t, http.MethodGet, "/orders/"+placed.Order.ID, "s1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/orders/"+placed.Order.ID, "s2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected other sessions not to see the order, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/orders", "s1", nil)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 1 {
		t.Fatalf("expected one order, got %d", list.Count)
	}

	var cr cartResponse
	decode(t, env.do(t, http.MethodGet, "/cart", "s1", nil), &cr)
	if len(cr.Items) != 0 {
		t.Fatalf("expected cart cleared after order, got %+v", cr.Items)
	}
}

func TestPlaceOrderPaymentFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = payment.ErrDeclined
	env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-bag"})

	rec := env.do(t, http.MethodPost, "/checkout/orders", "s1", checkoutBody("k1"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d", rec.Code)
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if !resp.Retryable {
		t.Fatalf("expected retryable payment error")
	}

	var cr cartResponse
	decode(t, env.do(t, http.MethodGet, "/cart", "s1", nil), &cr)
	if len(cr.Items) != 1 {
		t.Fatalf("expected cart kept after failed payment, got %+v", cr.Items)
	}
	if rec := env.do(t, http.MethodGet, "/orders/last", "s1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestCartEventsStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/cart/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(sessionHeader, "s1")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(event string) {
		t.Helper()
		timeout := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %s", event)
				}
				if line == "event:"+event {
					return
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", event)
			}
		}
	}

	waitFor("snapshot")
	env.do(t, http.MethodPost, "/cart/items", "s1", addItemRequest{ProductID: "qianlun-wallet"})
	waitFor("cart-updated")
}

func TestNewSessionIsUsable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/sessions", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	var body struct {
		SessionID string `json:"sessionId"`
	}
	decode(t, rec, &body)
	if body.SessionID == "" || rec.Header().Get(sessionHeader) != body.SessionID {
		t.Fatalf("unexpected session response %+v", body)
	}
	if rec := env.do(t, http.MethodGet, "/cart", body.SessionID, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected issued session to be accepted, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/categories", "", nil)
	var cats struct {
		Categories []string `json:"categories"`
	}
	decode(t, rec, &cats)
	if rec.Code != http.StatusOK || len(cats.Categories) == 0 {
		t.Fatalf("unexpected categories %d %+v", rec.Code, cats)
	}
}
