package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/events"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Sample is one periodic top-of-book observation across both venues.
type Sample struct {
	Time        time.Time
	Ticker      string
	BackpackBid float64
	BackpackAsk float64
	LighterBid  float64
	LighterAsk  float64
	SpreadLong  float64
	SpreadShort float64
	Signal      string
}

// FillRow is one executed (or attempted) leg of a terminal attempt.
type FillRow struct {
	Time         time.Time
	AttemptID    string
	Direction    string
	Status       string
	Role         string
	Venue        string
	Side         string
	RequestedQty float64
	FilledQty    float64
	AvgPrice     float64
	OrderID      string
	Reason       string
}

// Writer persists market samples and attempt fills to TimescaleDB. All
// writes go through bounded queues; when a queue is full the row is
// dropped rather than stalling the trading loop.
type Writer struct {
	db          *sql.DB
	log         *zap.Logger
	schema      string
	ticker      string
	samples     chan Sample
	fills       chan FillRow
	started     atomic.Bool
	dropSamples atomic.Uint64
	dropFills   atomic.Uint64
}

func New(cfg config.HistoryConfig, ticker string, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		ticker:  ticker,
		samples: make(chan Sample, queueSize),
		fills:   make(chan FillRow, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Publish implements events.Sink. Only market samples and terminal
// attempts are persisted; intermediate transitions stay in the log.
func (w *Writer) Publish(e events.Event) {
	if w == nil {
		return
	}
	switch {
	case e.Type == events.TypeBBOSample && e.BBO != nil:
		w.EnqueueSample(Sample{
			Time:        e.Time,
			Ticker:      e.BBO.Ticker,
			BackpackBid: e.BBO.BackpackBid,
			BackpackAsk: e.BBO.BackpackAsk,
			LighterBid:  e.BBO.LighterBid,
			LighterAsk:  e.BBO.LighterAsk,
			SpreadLong:  e.BBO.SpreadLong,
			SpreadShort: e.BBO.SpreadShort,
			Signal:      e.BBO.Signal,
		})
	case e.Type == events.TypeAttempt && e.Attempt != nil && e.Attempt.Terminal:
		for _, row := range fillRows(e) {
			w.EnqueueFill(row)
		}
	}
}

func fillRows(e events.Event) []FillRow {
	a := e.Attempt
	rows := make([]FillRow, 0, len(a.Legs)+1)
	for i, leg := range a.Legs {
		rows = append(rows, fillRow(e.Time, a, leg, fmt.Sprintf("leg%d", i+1)))
	}
	if a.Unwind != nil {
		rows = append(rows, fillRow(e.Time, a, *a.Unwind, "unwind"))
	}
	return rows
}

func fillRow(ts time.Time, a *events.Attempt, leg events.Leg, role string) FillRow {
	return FillRow{
		Time:         ts,
		AttemptID:    a.ID,
		Direction:    a.Direction,
		Status:       a.Status,
		Role:         role,
		Venue:        leg.Venue,
		Side:         leg.Side,
		RequestedQty: leg.RequestedQty,
		FilledQty:    leg.FilledQty,
		AvgPrice:     leg.AvgPrice,
		OrderID:      leg.OrderID,
		Reason:       leg.Reason,
	}
}

func (w *Writer) EnqueueSample(sample Sample) {
	if w == nil {
		return
	}
	select {
	case w.samples <- sample:
		return
	default:
		if w.dropSamples.Add(1) == 1 && w.log != nil {
			w.log.Warn("history sample queue full")
		}
	}
}

func (w *Writer) EnqueueFill(row FillRow) {
	if w == nil {
		return
	}
	select {
	case w.fills <- row:
		return
	default:
		if w.dropFills.Add(1) == 1 && w.log != nil {
			w.log.Warn("history fill queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-w.samples:
			w.writeSample(ctx, sample)
		case row := <-w.fills:
			w.writeFill(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		ticker TEXT NOT NULL,
		backpack_bid DOUBLE PRECISION NOT NULL,
		backpack_ask DOUBLE PRECISION NOT NULL,
		lighter_bid DOUBLE PRECISION NOT NULL,
		lighter_ask DOUBLE PRECISION NOT NULL,
		spread_long DOUBLE PRECISION NOT NULL,
		spread_short DOUBLE PRECISION NOT NULL,
		signal TEXT NOT NULL,
		PRIMARY KEY (ts, ticker)
	)`, w.table("bbo_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		attempt_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		status TEXT NOT NULL,
		role TEXT NOT NULL,
		venue TEXT NOT NULL,
		side TEXT NOT NULL,
		requested_qty DOUBLE PRECISION NOT NULL,
		filled_qty DOUBLE PRECISION NOT NULL,
		avg_price DOUBLE PRECISION NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (attempt_id, role)
	)`, w.table("fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("bbo_samples"))); err != nil && w.log != nil {
		w.log.Warn("bbo_samples hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeSample(ctx context.Context, sample Sample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, ticker, backpack_bid, backpack_ask, lighter_bid, lighter_ask, spread_long, spread_short, signal
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	) ON CONFLICT (ts, ticker) DO NOTHING`, w.table("bbo_samples"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		sample.Ticker,
		sample.BackpackBid,
		sample.BackpackAsk,
		sample.LighterBid,
		sample.LighterAsk,
		sample.SpreadLong,
		sample.SpreadShort,
		sample.Signal,
	); err != nil && w.log != nil {
		w.log.Warn("history sample insert failed", zap.Error(err))
	}
}

func (w *Writer) writeFill(ctx context.Context, row FillRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, attempt_id, direction, status, role, venue, side, requested_qty, filled_qty, avg_price, order_id, reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	) ON CONFLICT (attempt_id, role) DO NOTHING`, w.table("fills"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.AttemptID,
		row.Direction,
		row.Status,
		row.Role,
		row.Venue,
		row.Side,
		row.RequestedQty,
		row.FilledQty,
		row.AvgPrice,
		row.OrderID,
		row.Reason,
	); err != nil && w.log != nil {
		w.log.Warn("history fill insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
