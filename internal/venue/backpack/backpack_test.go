package backpack

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/venue"

	"go.uber.org/zap"
)

func testCredentials(t *testing.T) config.BackpackCredentials {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	key := ed25519.NewKeyFromSeed(seed)
	return config.BackpackCredentials{
		PublicKey: base64.StdEncoding.EncodeToString(key.Public().(ed25519.PublicKey)),
		SecretKey: base64.StdEncoding.EncodeToString(seed),
	}
}

func TestSignerVerifies(t *testing.T) {
	creds := testCredentials(t)
	s, err := newSigner(creds.PublicKey, creds.SecretKey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	params := url.Values{}
	params.Set("symbol", "BTC_USDC_PERP")
	params.Set("side", "Bid")
	sig := s.sign("orderExecute", params, 1700000000000, 5000)

	pub, _ := base64.StdEncoding.DecodeString(creds.PublicKey)
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	message := "instruction=orderExecute&side=Bid&symbol=BTC_USDC_PERP&timestamp=1700000000000&window=5000"
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), raw) {
		t.Fatalf("signature did not verify against canonical message")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := newSigner("pub", "not-base64!"); err == nil {
		t.Fatalf("expected error for invalid base64 secret")
	}
	if _, err := newSigner("pub", base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected error for wrong-length seed")
	}
}

func TestClientOrderIDStable(t *testing.T) {
	a := clientOrderID("arb-1-backpack")
	b := clientOrderID("arb-1-backpack")
	c := clientOrderID("arb-2-backpack")
	if a != b {
		t.Fatalf("same input must map to same id: %d vs %d", a, b)
	}
	if a == c {
		t.Fatalf("distinct inputs should not collide in this test fixture")
	}
}

func TestSymbol(t *testing.T) {
	if got := Symbol("btc"); got != "BTC_USDC_PERP" {
		t.Fatalf("unexpected symbol: %s", got)
	}
}

func TestPlaceMarketOrderFilled(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/order" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-API-Key") == "" || r.Header.Get("X-Signature") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"111","status":"Filled","executedQuantity":"0.001","executedQuoteQuantity":"50.01"}`))
	}))
	defer server.Close()

	cfg := config.VenueConfig{RESTBaseURL: server.URL, Timeout: time.Second}
	ex, err := NewExecutor(cfg, testCredentials(t), "BTC", zap.NewNop())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	if ex.Venue() != book.VenueBackpack {
		t.Fatalf("unexpected venue: %s", ex.Venue())
	}

	fill, err := ex.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Side:     venue.SideBuy,
		Quantity: 0.001,
		ClientID: "arb-1-backpack",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if fill.OrderID != "111" || fill.FilledQty != 0.001 {
		t.Fatalf("unexpected fill: %#v", fill)
	}
	if fill.AvgPrice != 50010 {
		t.Fatalf("expected avg price 50010, got %f", fill.AvgPrice)
	}
	if gotBody["side"] != "Bid" || gotBody["orderType"] != "Market" || gotBody["symbol"] != "BTC_USDC_PERP" {
		t.Fatalf("unexpected request body: %#v", gotBody)
	}
}

func TestPlaceMarketOrderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"INSUFFICIENT_FUNDS","message":"insufficient margin"}`))
	}))
	defer server.Close()

	cfg := config.VenueConfig{RESTBaseURL: server.URL, Timeout: time.Second}
	ex, err := NewExecutor(cfg, testCredentials(t), "BTC", zap.NewNop())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	_, err = ex.PlaceMarketOrder(context.Background(), venue.OrderRequest{Side: venue.SideSell, Quantity: 1, ClientID: "x"})
	if err == nil {
		t.Fatalf("expected rejection error")
	}
	if !errors.Is(err, venue.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestOrderStatusUnknownOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := config.VenueConfig{RESTBaseURL: server.URL, Timeout: time.Second}
	ex, err := NewExecutor(cfg, testCredentials(t), "BTC", zap.NewNop())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	_, known, err := ex.OrderStatus(context.Background(), "arb-1-backpack")
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if known {
		t.Fatalf("404 must report the order as unknown")
	}
}

func TestOrderStatusFilled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("clientId") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"222","status":"Filled","executedQuantity":"0.5","executedQuoteQuantity":"25000"}`))
	}))
	defer server.Close()

	cfg := config.VenueConfig{RESTBaseURL: server.URL, Timeout: time.Second}
	ex, err := NewExecutor(cfg, testCredentials(t), "BTC", zap.NewNop())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	fill, known, err := ex.OrderStatus(context.Background(), "arb-1-backpack")
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if !known {
		t.Fatalf("expected known order")
	}
	if fill.FilledQty != 0.5 || fill.AvgPrice != 50000 {
		t.Fatalf("unexpected fill: %#v", fill)
	}
}

func TestNetPosition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"ETH_USDC_PERP","netQuantity":"2"},{"symbol":"BTC_USDC_PERP","netQuantity":"-0.25"}]`))
	}))
	defer server.Close()

	cfg := config.VenueConfig{RESTBaseURL: server.URL, Timeout: time.Second}
	ex, err := NewExecutor(cfg, testCredentials(t), "BTC", zap.NewNop())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	net, err := ex.NetPosition(context.Background())
	if err != nil {
		t.Fatalf("net position: %v", err)
	}
	if net != -0.25 {
		t.Fatalf("expected -0.25, got %f", net)
	}
}

func TestFeedParseBookTicker(t *testing.T) {
	feed := NewFeed(config.VenueConfig{WSURL: "ws://unused"}, "BTC", zap.NewNop())
	raw := json.RawMessage(`{"stream":"bookTicker.BTC_USDC_PERP","data":{"s":"BTC_USDC_PERP","b":"49999.5","B":"1.2","a":"50000.5","A":"0.8","u":42}}`)
	quote, ok := feed.parse(raw)
	if !ok {
		t.Fatalf("expected quote")
	}
	if quote.Venue != book.VenueBackpack || quote.Bid != 49999.5 || quote.Ask != 50000.5 || quote.Seq != 42 {
		t.Fatalf("unexpected quote: %#v", quote)
	}
	if quote.BidSize != 1.2 || quote.AskSize != 0.8 {
		t.Fatalf("unexpected sizes: %#v", quote)
	}
}

func TestFeedParseIgnoresOtherStreams(t *testing.T) {
	feed := NewFeed(config.VenueConfig{WSURL: "ws://unused"}, "BTC", zap.NewNop())
	if _, ok := feed.parse(json.RawMessage(`{"stream":"depth.BTC_USDC_PERP","data":{}}`)); ok {
		t.Fatalf("depth stream must be ignored")
	}
	if _, ok := feed.parse(json.RawMessage(`{"stream":"bookTicker.BTC_USDC_PERP","data":{"b":"bad"}}`)); ok {
		t.Fatalf("malformed prices must be ignored")
	}
	if _, ok := feed.parse(json.RawMessage(`not json`)); ok {
		t.Fatalf("garbage must be ignored")
	}
}
