package lighter

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/venue"

	"go.uber.org/zap"
)

// Orders cross the book by this fraction past the touch so an
// immediate-or-cancel limit behaves like a market order without
// accepting unbounded slippage.
const priceAggression = 0.002

const authTokenTTL = 10 * time.Minute

// QuoteSource provides the local top of book used to price aggressive
// limit orders.
type QuoteSource interface {
	Quote(v book.Venue) (book.Quote, bool)
}

// Executor places orders on Lighter. The venue has no native market
// order type; PlaceMarketOrder submits an immediate-or-cancel limit
// priced through the touch.
type Executor struct {
	ticker       string
	baseURL      string
	accountIndex int64
	apiKeyIndex  int64
	http         *http.Client
	key          ed25519.PrivateKey
	quotes       QuoteSource
	log          *zap.Logger

	// Resolved lazily from the venue's market metadata.
	marketIndex   int
	sizeDecimals  int
	priceDecimals int
	resolved      bool
}

func NewExecutor(cfg config.VenueConfig, creds config.LighterCredentials, ticker string, quotes QuoteSource, log *zap.Logger) (*Executor, error) {
	key, err := parsePrivateKey(creds.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &Executor{
		ticker:       strings.ToUpper(ticker),
		baseURL:      strings.TrimRight(cfg.RESTBaseURL, "/"),
		accountIndex: int64(creds.AccountIndex),
		apiKeyIndex:  int64(creds.APIKeyIndex),
		http:         &http.Client{Timeout: cfg.Timeout},
		key:          key,
		quotes:       quotes,
		log:          log,
		marketIndex:  cfg.MarketIndex,
	}, nil
}

func parsePrivateKey(raw string) (ed25519.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	seed, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode lighter api key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("lighter api key must be a 32-byte hex seed")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func (e *Executor) Venue() book.Venue {
	return book.VenueLighter
}

type orderPayload struct {
	Order struct {
		OrderIndex       string `json:"order_index"`
		Status           string `json:"status"`
		FilledBaseAmount int64  `json:"filled_base_amount"`
		FilledQuoteAmt   int64  `json:"filled_quote_amount"`
	} `json:"order"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Executor) PlaceMarketOrder(ctx context.Context, req venue.OrderRequest) (venue.Fill, error) {
	quote, ok := e.quotes.Quote(book.VenueLighter)
	if !ok {
		return venue.Fill{}, errors.New("lighter order book not ready")
	}
	if err := e.resolveMarket(ctx); err != nil {
		return venue.Fill{}, err
	}

	isAsk := req.Side == venue.SideSell
	price := quote.Ask * (1 + priceAggression)
	if isAsk {
		price = quote.Bid * (1 - priceAggression)
	}

	body := map[string]any{
		"market_index":       e.marketIndex,
		"client_order_index": clientOrderIndex(req.ClientID),
		"base_amount":        scale(req.Quantity, e.sizeDecimals),
		"price":              scale(price, e.priceDecimals),
		"is_ask":             isAsk,
		"order_type":         "limit",
		"time_in_force":      "immediate_or_cancel",
		"reduce_only":        false,
	}
	var resp orderPayload
	if err := e.do(ctx, http.MethodPost, "/api/v1/order", body, &resp); err != nil {
		return venue.Fill{}, err
	}
	if resp.Code != 0 {
		return venue.Fill{}, fmt.Errorf("%w: %s", venue.ErrRejected, resp.Message)
	}
	return e.fill(resp), nil
}

// OrderStatus looks an order up by its client order index. A venue
// response with an empty order is a definitive "never placed".
func (e *Executor) OrderStatus(ctx context.Context, clientID string) (venue.Fill, bool, error) {
	if err := e.resolveMarket(ctx); err != nil {
		return venue.Fill{}, false, err
	}
	params := url.Values{}
	params.Set("market_index", strconv.Itoa(e.marketIndex))
	params.Set("client_order_index", strconv.FormatInt(clientOrderIndex(clientID), 10))

	var resp orderPayload
	err := e.do(ctx, http.MethodGet, "/api/v1/order?"+params.Encode(), nil, &resp)
	if err != nil {
		var httpErr *apiError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return venue.Fill{}, false, nil
		}
		return venue.Fill{}, false, err
	}
	if resp.Code != 0 || resp.Order.OrderIndex == "" {
		return venue.Fill{}, false, nil
	}
	return e.fill(resp), true, nil
}

// NetPosition reads the signed position for the configured ticker from
// the public account endpoint.
func (e *Executor) NetPosition(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("by", "index")
	params.Set("value", strconv.FormatInt(e.accountIndex, 10))

	var resp struct {
		Accounts []struct {
			Positions []struct {
				Symbol   string `json:"symbol"`
				Position string `json:"position"`
				Sign     int    `json:"sign"`
			} `json:"positions"`
		} `json:"accounts"`
	}
	if err := e.do(ctx, http.MethodGet, "/api/v1/account?"+params.Encode(), nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Accounts) == 0 {
		return 0, nil
	}
	for _, pos := range resp.Accounts[0].Positions {
		if pos.Symbol != e.ticker {
			continue
		}
		size, err := strconv.ParseFloat(pos.Position, 64)
		if err != nil {
			return 0, fmt.Errorf("parse lighter position %q: %w", pos.Position, err)
		}
		return size * float64(pos.Sign), nil
	}
	return 0, nil
}

// resolveMarket fetches the market's integer scaling factors once.
func (e *Executor) resolveMarket(ctx context.Context) error {
	if e.resolved {
		return nil
	}
	var resp struct {
		OrderBooks []struct {
			Symbol        string `json:"symbol"`
			MarketID      int    `json:"market_id"`
			SizeDecimals  int    `json:"supported_size_decimals"`
			PriceDecimals int    `json:"supported_price_decimals"`
		} `json:"order_books"`
	}
	if err := e.do(ctx, http.MethodGet, "/api/v1/orderBooks", nil, &resp); err != nil {
		return err
	}
	for _, market := range resp.OrderBooks {
		if market.Symbol != e.ticker {
			continue
		}
		e.marketIndex = market.MarketID
		e.sizeDecimals = market.SizeDecimals
		e.priceDecimals = market.PriceDecimals
		e.resolved = true
		e.log.Info("lighter market resolved",
			zap.String("symbol", market.Symbol),
			zap.Int("market_index", market.MarketID),
		)
		return nil
	}
	return fmt.Errorf("lighter market not found for ticker %s", e.ticker)
}

func (e *Executor) fill(resp orderPayload) venue.Fill {
	filledQty := unscale(resp.Order.FilledBaseAmount, e.sizeDecimals)
	fill := venue.Fill{
		OrderID:   resp.Order.OrderIndex,
		FilledQty: filledQty,
	}
	if resp.Order.FilledBaseAmount > 0 {
		fill.AvgPrice = float64(resp.Order.FilledQuoteAmt) / float64(resp.Order.FilledBaseAmount) *
			math.Pow10(e.sizeDecimals) / math.Pow10(e.priceDecimals)
	}
	return fill
}

func (e *Executor) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(payload))
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", e.authToken())

	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// authToken signs an expiring account-scoped token the gateway accepts
// in place of per-request signatures.
func (e *Executor) authToken() string {
	deadline := time.Now().Add(authTokenTTL).Unix()
	message := fmt.Sprintf("%d:%d:%d", e.accountIndex, e.apiKeyIndex, deadline)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(e.key, []byte(message)))
	return message + ":" + signature
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("lighter http %d: %s", e.StatusCode, e.Body)
}

func scale(value float64, decimals int) int64 {
	return int64(math.Round(value * math.Pow10(decimals)))
}

func unscale(value int64, decimals int) float64 {
	return float64(value) / math.Pow10(decimals)
}

// clientOrderIndex folds the attempt-scoped client id into the integer
// index the venue requires, stable across retries of the same order.
func clientOrderIndex(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64() % 1_000_000)
}
