package backpack

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/venue/ws"

	"go.uber.org/zap"
)

// Feed streams Backpack's bookTicker channel into normalized quotes.
// The stream's update id is carried as the quote sequence number.
type Feed struct {
	symbol string
	client *ws.Client
	log    *zap.Logger
}

func NewFeed(cfg config.VenueConfig, ticker string, log *zap.Logger) *Feed {
	pingPayload := map[string]any{"method": "PING"}
	return &Feed{
		symbol: Symbol(ticker),
		client: ws.New(cfg.WSURL, cfg.ReconnectDelay, cfg.PingInterval, pingPayload, log),
		log:    log,
	}
}

func (f *Feed) Venue() book.Venue {
	return book.VenueBackpack
}

func (f *Feed) Run(ctx context.Context, out chan<- book.Quote) error {
	if err := f.client.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{"bookTicker." + f.symbol},
	}
	if err := f.client.Subscribe(ctx, sub); err != nil {
		return err
	}
	return f.client.Run(ctx, func(raw json.RawMessage) {
		quote, ok := f.parse(raw)
		if !ok {
			return
		}
		select {
		case out <- quote:
		case <-ctx.Done():
		}
	})
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTicker struct {
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidSize  string `json:"B"`
	Ask      string `json:"a"`
	AskSize  string `json:"A"`
	UpdateID uint64 `json:"u"`
}

func (f *Feed) parse(raw json.RawMessage) (book.Quote, bool) {
	var envelope streamEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return book.Quote{}, false
	}
	if !strings.HasPrefix(envelope.Stream, "bookTicker.") {
		return book.Quote{}, false
	}
	var ticker bookTicker
	if err := json.Unmarshal(envelope.Data, &ticker); err != nil {
		f.log.Warn("backpack bookTicker parse failed", zap.Error(err))
		return book.Quote{}, false
	}
	bid, err1 := strconv.ParseFloat(ticker.Bid, 64)
	bidSize, err2 := strconv.ParseFloat(ticker.BidSize, 64)
	ask, err3 := strconv.ParseFloat(ticker.Ask, 64)
	askSize, err4 := strconv.ParseFloat(ticker.AskSize, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		f.log.Warn("backpack bookTicker has malformed prices", zap.String("symbol", ticker.Symbol))
		return book.Quote{}, false
	}
	if bid <= 0 || ask <= 0 {
		return book.Quote{}, false
	}
	return book.Quote{
		Venue:      book.VenueBackpack,
		Bid:        bid,
		BidSize:    bidSize,
		Ask:        ask,
		AskSize:    askSize,
		Seq:        ticker.UpdateID,
		ReceivedAt: time.Now().UTC(),
	}, true
}
