package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bl-arb-bot/internal/alerts"
	"bl-arb-bot/internal/book"
	"bl-arb-bot/internal/config"
	"bl-arb-bot/internal/events"
	"bl-arb-bot/internal/exec"
	"bl-arb-bot/internal/history"
	"bl-arb-bot/internal/metrics"
	"bl-arb-bot/internal/position"
	"bl-arb-bot/internal/state"
	"bl-arb-bot/internal/state/sqlite"
	"bl-arb-bot/internal/strategy"
	"bl-arb-bot/internal/venue"
	"bl-arb-bot/internal/venue/backpack"
	"bl-arb-bot/internal/venue/lighter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const quoteQueueSize = 1024

// App wires the feeds, book store, evaluator and coordinator together
// and owns the process lifecycle.
type App struct {
	cfg         *config.Config
	log         *zap.Logger
	store       *sqlite.Store
	books       *book.Store
	positions   *position.Tracker
	evaluator   *strategy.Evaluator
	coordinator *exec.Coordinator
	feeds       []venue.QuoteFeed
	executors   map[book.Venue]venue.OrderExecutor
	bus         *events.Bus
	history     *history.Writer
	metrics     *metrics.Metrics
	prom        *metrics.Prometheus
	telegram    *alerts.Telegram

	opsMu          sync.RWMutex
	paused         bool
	halted         *state.Halt
	operatorWarned bool

	// Session tallies for the shutdown summary, mutated only from the
	// evaluation loop.
	attemptsTotal int
	hedgedTotal   int
	unwoundTotal  int
	abortedTotal  int
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	backpackCreds, err := config.BackpackCredentialsFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	lighterCreds, err := config.LighterCredentialsFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	books := book.NewStore()
	tracker := position.New(cfg.Strategy.MaxPosition)

	backpackExec, err := backpack.NewExecutor(cfg.Venues.Backpack, backpackCreds, cfg.Strategy.Ticker, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	lighterExec, err := lighter.NewExecutor(cfg.Venues.Lighter, lighterCreds, cfg.Strategy.Ticker, books, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	executors := map[book.Venue]venue.OrderExecutor{
		book.VenueBackpack: backpackExec,
		book.VenueLighter:  lighterExec,
	}
	feeds := []venue.QuoteFeed{
		backpack.NewFeed(cfg.Venues.Backpack, cfg.Strategy.Ticker, log),
		lighter.NewFeed(cfg.Venues.Lighter, log),
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	telegram := alerts.NewTelegram(cfg.Telegram, log)
	historyWriter, err := history.New(cfg.History, cfg.Strategy.Ticker, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sinks := []events.Sink{events.NewZapSink(log), alerts.NewSink(telegram, log)}
	if historyWriter != nil {
		sinks = append(sinks, historyWriter)
	}
	bus := events.NewBus(cfg.History.QueueSize, log, sinks...)

	firstLeg := book.Venue(cfg.Strategy.FirstLeg)
	coordinator := exec.NewCoordinator(cfg.Exec, firstLeg, executors, tracker, bus, state.NewJournal(store), m, log)
	evaluator := strategy.NewEvaluator(cfg.Strategy, books, tracker)

	return &App{
		cfg:         cfg,
		log:         log,
		store:       store,
		books:       books,
		positions:   tracker,
		evaluator:   evaluator,
		coordinator: coordinator,
		feeds:       feeds,
		executors:   executors,
		bus:         bus,
		history:     historyWriter,
		metrics:     m,
		prom:        prom,
		telegram:    telegram,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.history.Close()

	if halt, ok, err := state.LoadHalt(ctx, a.store); err != nil {
		a.log.Warn("halt latch load failed", zap.Error(err))
	} else if ok {
		a.setHalted(&halt)
		a.log.Warn("trading halted from previous session, send /ack to resume",
			zap.String("attempt_id", halt.AttemptID),
			zap.String("reason", halt.Reason),
		)
	}

	a.bus.Start(ctx)
	a.history.Start(ctx)
	a.seedPositions(ctx)
	a.startOperator(ctx)

	g, ctx := errgroup.WithContext(ctx)
	quotes := make(chan book.Quote, quoteQueueSize)
	for _, feed := range a.feeds {
		feed := feed
		g.Go(func() error {
			err := feed.Run(ctx, quotes)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("quote feed stopped", zap.String("venue", string(feed.Venue())), zap.Error(err))
				return err
			}
			return nil
		})
	}
	g.Go(func() error { return a.applyQuotes(ctx, quotes) })
	g.Go(func() error { return a.evalLoop(ctx) })
	g.Go(func() error { return a.sampleLoop(ctx) })
	a.startMetricsServer(ctx, g)

	err := g.Wait()
	a.logShutdownSummary()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// seedPositions asks each venue for its resting net position so the
// cap applies to exposure that predates this process.
func (a *App) seedPositions(ctx context.Context) {
	now := time.Now().UTC()
	for v, ex := range a.executors {
		source, ok := ex.(venue.PositionSource)
		if !ok {
			continue
		}
		net, err := source.NetPosition(ctx)
		if err != nil {
			a.log.Warn("startup position query failed", zap.String("venue", string(v)), zap.Error(err))
			continue
		}
		a.positions.Set(v, net, now)
		a.log.Info("seeded venue position", zap.String("venue", string(v)), zap.Float64("net", net))
	}
}

func (a *App) applyQuotes(ctx context.Context, quotes <-chan book.Quote) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case quote := <-quotes:
			if a.books.Update(quote) {
				a.metrics.QuotesApplied.Inc()
			} else {
				a.metrics.StaleQuotesDropped.Inc()
			}
		}
	}
}

func (a *App) evalLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Strategy.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			a.evalTick(ctx, now.UTC())
		}
	}
}

func (a *App) evalTick(ctx context.Context, now time.Time) {
	if a.isPaused() || a.isHalted() || a.coordinator.InFlight() {
		return
	}
	opp, err := a.evaluator.Evaluate(now)
	if err != nil {
		if errors.Is(err, strategy.ErrNoHeadroom) {
			a.metrics.OpportunitiesSuppressed.Inc()
		}
		return
	}
	a.metrics.OpportunitiesDetected.Inc()
	a.bus.Publish(events.Event{
		Type:     events.TypeOpportunity,
		Severity: events.SeverityInfo,
		Time:     now,
		Opportunity: &events.Opportunity{
			Direction: string(opp.Direction),
			Spread:    opp.Spread,
			SpreadBps: opp.SpreadBps,
			Size:      opp.Size,
		},
	})

	attempt, err := a.coordinator.Execute(ctx, opp)
	if err != nil {
		if !errors.Is(err, exec.ErrInFlight) {
			a.log.Warn("attempt execution failed", zap.Error(err))
		}
		return
	}
	a.attemptsTotal++
	switch attempt.Status {
	case exec.StatusBothFilled:
		a.hedgedTotal++
	case exec.StatusUnwound:
		a.unwoundTotal++
	case exec.StatusLeg1Failed:
		a.abortedTotal++
	case exec.StatusUnwindFailed:
		a.engageHalt(ctx, attempt)
	}
}

// engageHalt latches the trading stop after a failed unwind. The latch
// is persisted, so a restart does not quietly resume trading with open
// one-sided exposure.
func (a *App) engageHalt(ctx context.Context, attempt *exec.Attempt) {
	reason := "unwind failed, unhedged exposure left on " + string(attempt.Legs[0].Venue)
	halt := state.Halt{
		Reason:      reason,
		AttemptID:   attempt.ID,
		TriggeredMS: time.Now().UTC().UnixMilli(),
	}
	a.setHalted(&halt)
	if err := state.SaveHalt(ctx, a.store, halt); err != nil {
		a.log.Error("halt latch persist failed", zap.Error(err))
	}
	a.bus.Publish(events.Event{
		Type:     events.TypeHalt,
		Severity: events.SeverityCritical,
		Time:     time.Now().UTC(),
		Halt:     &events.Halt{AttemptID: attempt.ID, Reason: reason},
	})
}

// sampleLoop periodically records both books and the derived spreads,
// independent of whether any trade happens.
func (a *App) sampleLoop(ctx context.Context) error {
	interval := a.cfg.History.SampleInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, ok := a.books.Snapshot()
			if !ok {
				continue
			}
			long, short := strategy.Spreads(snap)
			a.bus.Publish(events.Event{
				Type:     events.TypeBBOSample,
				Severity: events.SeverityInfo,
				Time:     time.Now().UTC(),
				BBO: &events.BBOSample{
					Ticker:      a.cfg.Strategy.Ticker,
					BackpackBid: snap.Backpack.Bid,
					BackpackAsk: snap.Backpack.Ask,
					LighterBid:  snap.Lighter.Bid,
					LighterAsk:  snap.Lighter.Ask,
					SpreadLong:  long,
					SpreadShort: short,
					Signal:      signalFor(long, short, a.cfg.Strategy),
				},
			})
		}
	}
}

func signalFor(long, short float64, cfg config.StrategyConfig) string {
	switch {
	case long > cfg.LongThreshold && short > cfg.ShortThreshold:
		if short > long {
			return "SHORT"
		}
		return "LONG"
	case long > cfg.LongThreshold:
		return "LONG"
	case short > cfg.ShortThreshold:
		return "SHORT"
	default:
		return "NONE"
	}
}

func (a *App) startMetricsServer(ctx context.Context, g *errgroup.Group) {
	if !a.cfg.Metrics.Enabled || a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	g.Go(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	})
}

func (a *App) logShutdownSummary() {
	fields := []zap.Field{
		zap.Int("attempts", a.attemptsTotal),
		zap.Int("hedged", a.hedgedTotal),
		zap.Int("unwound", a.unwoundTotal),
		zap.Int("aborted", a.abortedTotal),
		zap.Uint64("events_dropped", a.bus.Dropped()),
	}
	for v, pos := range a.positions.Snapshot() {
		fields = append(fields,
			zap.Float64("net_"+string(v), pos.Net),
			zap.Float64("avg_entry_"+string(v), pos.AvgEntry),
		)
	}
	a.log.Info("session summary", fields...)
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.paused = paused
	return a.paused
}

func (a *App) isHalted() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.halted != nil
}

func (a *App) setHalted(halt *state.Halt) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.halted = halt
}

func (a *App) haltSnapshot() *state.Halt {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	if a.halted == nil {
		return nil
	}
	copy := *a.halted
	return &copy
}
