package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/venue/ws"

	"go.uber.org/zap"
)

// Levels below this notional are skipped when deriving the best bid
// and ask, so dust orders at the top of the book cannot move the
// signal.
const minLevelNotional = 10000.0

// Feed maintains a local depth map from Lighter's order_book channel
// and emits a normalized top-of-book quote per update. The channel
// offset is carried as the quote sequence number.
type Feed struct {
	marketIndex int
	client      *ws.Client
	log         *zap.Logger

	// Mutated only from the read-loop goroutine.
	bids           map[float64]float64
	asks           map[float64]float64
	offset         uint64
	snapshotLoaded bool
}

func NewFeed(cfg config.VenueConfig, log *zap.Logger) *Feed {
	return &Feed{
		marketIndex: cfg.MarketIndex,
		client:      ws.New(cfg.WSURL, cfg.ReconnectDelay, 0, nil, log),
		log:         log,
		bids:        make(map[float64]float64),
		asks:        make(map[float64]float64),
	}
}

func (f *Feed) Venue() book.Venue {
	return book.VenueLighter
}

func (f *Feed) Run(ctx context.Context, out chan<- book.Quote) error {
	if err := f.client.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{
		"type":    "subscribe",
		"channel": fmt.Sprintf("order_book/%d", f.marketIndex),
	}
	if err := f.client.Subscribe(ctx, sub); err != nil {
		return err
	}
	return f.client.Run(ctx, func(raw json.RawMessage) {
		quote, ok := f.handle(ctx, raw)
		if !ok {
			return
		}
		select {
		case out <- quote:
		case <-ctx.Done():
		}
	})
}

type level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBookPayload struct {
	Offset uint64  `json:"offset"`
	Bids   []level `json:"bids"`
	Asks   []level `json:"asks"`
}

type message struct {
	Type      string           `json:"type"`
	OrderBook orderBookPayload `json:"order_book"`
}

func (f *Feed) handle(ctx context.Context, raw json.RawMessage) (book.Quote, bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return book.Quote{}, false
	}
	switch msg.Type {
	case "subscribed/order_book":
		// Fresh snapshot, also delivered after every reconnect.
		f.bids = make(map[float64]float64)
		f.asks = make(map[float64]float64)
		f.applyLevels(msg.OrderBook)
		f.snapshotLoaded = true
		f.log.Info("lighter order book snapshot loaded",
			zap.Int("bids", len(f.bids)),
			zap.Int("asks", len(f.asks)),
		)
		return f.quote()
	case "update/order_book":
		if !f.snapshotLoaded {
			return book.Quote{}, false
		}
		f.applyLevels(msg.OrderBook)
		return f.quote()
	case "ping":
		if err := f.client.Send(ctx, map[string]any{"type": "pong"}); err != nil {
			f.log.Warn("lighter pong failed", zap.Error(err))
		}
	}
	return book.Quote{}, false
}

func (f *Feed) applyLevels(payload orderBookPayload) {
	if payload.Offset > f.offset {
		f.offset = payload.Offset
	}
	applySide(f.bids, payload.Bids)
	applySide(f.asks, payload.Asks)
}

func applySide(side map[float64]float64, updates []level) {
	for _, lvl := range updates {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if size == 0 {
			delete(side, price)
			continue
		}
		side[price] = size
	}
}

func (f *Feed) quote() (book.Quote, bool) {
	bid, bidSize, bidOK := bestLevel(f.bids, true)
	ask, askSize, askOK := bestLevel(f.asks, false)
	if !bidOK || !askOK {
		return book.Quote{}, false
	}
	return book.Quote{
		Venue:      book.VenueLighter,
		Bid:        bid,
		BidSize:    bidSize,
		Ask:        ask,
		AskSize:    askSize,
		Seq:        f.offset,
		ReceivedAt: time.Now().UTC(),
	}, true
}

func bestLevel(side map[float64]float64, highest bool) (float64, float64, bool) {
	var bestPrice, bestSize float64
	found := false
	for price, size := range side {
		if price*size < minLevelNotional {
			continue
		}
		if !found || (highest && price > bestPrice) || (!highest && price < bestPrice) {
			bestPrice, bestSize = price, size
			found = true
		}
	}
	return bestPrice, bestSize, found
}
