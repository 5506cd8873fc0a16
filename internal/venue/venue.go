package venue

import (
	"context"
	"errors"

	"bl-arb-bot/internal/book"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ErrRejected marks a definitive venue-side rejection, as opposed to a
// timeout or transport failure whose outcome is unknown.
var ErrRejected = errors.New("order rejected")

// OrderRequest is a market order. ClientID is caller-generated so the
// order remains queryable even when the placement acknowledgment is lost.
type OrderRequest struct {
	Side     Side
	Quantity float64
	ClientID string
}

// Fill is the confirmed outcome of an order.
type Fill struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
}

// QuoteFeed streams normalized quotes for one venue. Run blocks until
// ctx is done, reconnecting internally; it must never push a quote with
// a sequence number older than one already delivered.
type QuoteFeed interface {
	Venue() book.Venue
	Run(ctx context.Context, out chan<- book.Quote) error
}

// OrderExecutor submits market orders on one venue and answers status
// queries after lost acknowledgments.
type OrderExecutor interface {
	Venue() book.Venue
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (Fill, error)
	// OrderStatus looks an order up by client id. known is false when the
	// venue has no record of the order.
	OrderStatus(ctx context.Context, clientID string) (Fill, bool, error)
}

// PositionSource is an optional executor capability used once at startup
// to seed the tracker with the venue's resting net position.
type PositionSource interface {
	NetPosition(ctx context.Context) (float64, error)
}
