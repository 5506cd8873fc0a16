package backpack

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
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

const signatureWindowMS = 5000

// Executor places market orders on Backpack perpetuals over the signed
// REST API.
type Executor struct {
	symbol  string
	baseURL string
	http    *http.Client
	signer  *signer
	log     *zap.Logger
}

func NewExecutor(cfg config.VenueConfig, creds config.BackpackCredentials, ticker string, log *zap.Logger) (*Executor, error) {
	s, err := newSigner(creds.PublicKey, creds.SecretKey)
	if err != nil {
		return nil, err
	}
	return &Executor{
		symbol:  Symbol(ticker),
		baseURL: strings.TrimRight(cfg.RESTBaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		signer:  s,
		log:     log,
	}, nil
}

// Symbol maps a base ticker to Backpack's USDC perpetual symbol.
func Symbol(ticker string) string {
	return strings.ToUpper(ticker) + "_USDC_PERP"
}

func (e *Executor) Venue() book.Venue {
	return book.VenueBackpack
}

type orderResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExecutedQuantity  string `json:"executedQuantity"`
	ExecutedQuoteQty  string `json:"executedQuoteQuantity"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	ClientID          uint32 `json:"clientId"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	RequestedQuantity string `json:"quantity"`
}

func (e *Executor) PlaceMarketOrder(ctx context.Context, req venue.OrderRequest) (venue.Fill, error) {
	side := "Bid"
	if req.Side == venue.SideSell {
		side = "Ask"
	}
	quantity := strconv.FormatFloat(req.Quantity, 'f', -1, 64)
	clientID := clientOrderID(req.ClientID)

	body := map[string]any{
		"symbol":    e.symbol,
		"side":      side,
		"orderType": "Market",
		"quantity":  quantity,
		"clientId":  clientID,
	}
	params := url.Values{}
	params.Set("symbol", e.symbol)
	params.Set("side", side)
	params.Set("orderType", "Market")
	params.Set("quantity", quantity)
	params.Set("clientId", strconv.FormatUint(uint64(clientID), 10))

	var resp orderResponse
	if err := e.do(ctx, http.MethodPost, "/api/v1/order", "orderExecute", params, body, &resp); err != nil {
		return venue.Fill{}, err
	}
	if resp.Code != "" {
		return venue.Fill{}, fmt.Errorf("%w: %s", venue.ErrRejected, orderError(resp))
	}
	return fillFromOrder(resp)
}

// OrderStatus looks up an order by its client id. A venue response with
// no matching order is a definitive zero fill, reported as known=false.
func (e *Executor) OrderStatus(ctx context.Context, clientID string) (venue.Fill, bool, error) {
	params := url.Values{}
	params.Set("symbol", e.symbol)
	params.Set("clientId", strconv.FormatUint(uint64(clientOrderID(clientID)), 10))

	var resp orderResponse
	err := e.do(ctx, http.MethodGet, "/api/v1/order?"+params.Encode(), "orderQuery", params, nil, &resp)
	if err != nil {
		var httpErr *apiError
		if asAPIError(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return venue.Fill{}, false, nil
		}
		return venue.Fill{}, false, err
	}
	if resp.Code != "" {
		if strings.EqualFold(resp.Code, "RESOURCE_NOT_FOUND") {
			return venue.Fill{}, false, nil
		}
		return venue.Fill{}, false, fmt.Errorf("backpack order query: %s", orderError(resp))
	}
	fill, ferr := fillFromOrder(resp)
	if ferr != nil {
		// The venue knows the order but it did not execute.
		return venue.Fill{OrderID: resp.ID}, true, nil
	}
	return fill, true, nil
}

// NetPosition returns the signed perpetual position for the configured
// symbol, used to seed the tracker at startup.
func (e *Executor) NetPosition(ctx context.Context) (float64, error) {
	var positions []struct {
		Symbol      string `json:"symbol"`
		NetQuantity string `json:"netQuantity"`
	}
	if err := e.do(ctx, http.MethodGet, "/api/v1/position", "positionQuery", url.Values{}, nil, &positions); err != nil {
		return 0, err
	}
	for _, pos := range positions {
		if pos.Symbol != e.symbol {
			continue
		}
		net, err := strconv.ParseFloat(pos.NetQuantity, 64)
		if err != nil {
			return 0, fmt.Errorf("parse backpack net quantity %q: %w", pos.NetQuantity, err)
		}
		return net, nil
	}
	return 0, nil
}

func fillFromOrder(resp orderResponse) (venue.Fill, error) {
	if !strings.EqualFold(resp.Status, "Filled") {
		return venue.Fill{}, fmt.Errorf("%w: order status %s", venue.ErrRejected, resp.Status)
	}
	executedQty, err := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if err != nil {
		return venue.Fill{}, fmt.Errorf("parse executed quantity %q: %w", resp.ExecutedQuantity, err)
	}
	executedQuote, err := strconv.ParseFloat(resp.ExecutedQuoteQty, 64)
	if err != nil {
		return venue.Fill{}, fmt.Errorf("parse executed quote quantity %q: %w", resp.ExecutedQuoteQty, err)
	}
	fill := venue.Fill{OrderID: resp.ID, FilledQty: executedQty}
	if executedQty > 0 {
		fill.AvgPrice = executedQuote / executedQty
	}
	return fill, nil
}

func orderError(resp orderResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	return resp.Code
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("backpack http %d: %s", e.StatusCode, e.Body)
}

func asAPIError(err error, target **apiError) bool {
	ae, ok := err.(*apiError)
	if ok {
		*target = ae
	}
	return ok
}

func (e *Executor) do(ctx context.Context, method, path, instruction string, params url.Values, body any, out any) error {
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
	timestamp := time.Now().UnixMilli()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", e.signer.publicKey)
	req.Header.Set("X-Signature", e.signer.sign(instruction, params, timestamp, signatureWindowMS))
	req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Window", strconv.FormatInt(signatureWindowMS, 10))

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

// clientOrderID folds the attempt-scoped client id into the uint32 the
// venue accepts. The same input always maps to the same id, so status
// queries after a lost acknowledgment find the original order.
func clientOrderID(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()
}
