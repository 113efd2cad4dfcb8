// Package execution turns valid signals into managed positions: breakeven
// moves, trailing stops, closure, and broker synchronization.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fxcore/internal/alert"
	"fxcore/internal/audit"
	"fxcore/internal/broker"
	"fxcore/internal/events"
	"fxcore/internal/market"
	"fxcore/internal/signal"
	"fxcore/pkg/db"
)

// Config wires the engine's collaborators. Optional hooks are explicit
// fields; a nil hook is simply skipped.
type Config struct {
	DefaultRiskFraction float64
	BreakevenRatio      float64 // fraction of target distance before SL moves to entry
	BrokerTimeout       time.Duration
	PriceTimeout        time.Duration
	ReconcileMinWait    time.Duration

	Broker broker.Router // nil means local book-keeping only
	Prices PriceSource
	Rules  *market.Rules
	Bus    *events.Bus
	Audit  *audit.Logger
	DB     *db.Database
	Alerts *alert.Bus

	RefreshRiskSnapshot    func()
	OnTradeClosed          func(Trade)
	ScheduleReconciliation func()
}

// Engine owns the active-trade set, the trade history, and the daily risk
// accumulator. All shared state mutates under one mutex; broker and price
// calls happen outside it.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	active    map[string]*Trade
	history   []*Trade
	dailyRisk float64
	lastSync  time.Time
}

// NewEngine validates required collaborators and applies defaults.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Prices == nil {
		return nil, errors.New("execution: price source is required")
	}
	if cfg.BreakevenRatio <= 0 {
		cfg.BreakevenRatio = 0.30
	}
	if cfg.BrokerTimeout <= 0 {
		cfg.BrokerTimeout = 10 * time.Second
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 3 * time.Second
	}
	if cfg.ReconcileMinWait <= 0 {
		cfg.ReconcileMinWait = 60 * time.Second
	}
	if cfg.DefaultRiskFraction <= 0 {
		cfg.DefaultRiskFraction = 0.01
	}
	return &Engine{
		cfg:    cfg,
		active: make(map[string]*Trade),
	}, nil
}

// ExecuteTrade opens a position from a valid signal. Invalid signals are
// rejected with no state mutation. Broker placement failure rolls back the
// provisional local commit (compensating transaction).
func (e *Engine) ExecuteTrade(ctx context.Context, sig signal.Signal) ExecuteResult {
	if !sig.Validity.IsValid {
		if e.cfg.Bus != nil {
			e.cfg.Bus.Publish(events.EventSignalRejected, sig)
		}
		if e.cfg.Audit != nil {
			e.cfg.Audit.Record("signal.rejected", map[string]any{
				"pair":   sig.Pair,
				"state":  sig.Validity.Decision.State,
				"reason": sig.Validity.Reason,
			})
		}
		return ExecuteResult{Success: false, Reason: sig.Validity.Reason, Signal: sig}
	}

	riskFraction := sig.RiskManagement.RiskFraction
	if riskFraction == 0 {
		riskFraction = e.cfg.DefaultRiskFraction
	}

	pipSize := 0.0001
	if e.cfg.Rules != nil {
		pipSize = e.cfg.Rules.GetPrecision(sig.Pair).PipSize
	}

	t := &Trade{
		ID:           uuid.NewString(),
		Pair:         sig.Pair,
		Direction:    sig.Direction,
		EntryPrice:   sig.Entry.Price,
		StopLoss:     sig.Entry.StopLoss,
		TakeProfit:   sig.Entry.TakeProfit,
		PositionSize: sig.RiskManagement.PositionSize,
		RiskFraction: riskFraction,
		OpenTime:     time.Now().UTC(),
		Status:       "open",
		Trailing:     sig.Entry.TrailingStop,
		PipSize:      pipSize,
	}

	// Provisional local commit.
	e.mu.Lock()
	e.active[t.ID] = t
	e.dailyRisk += riskFraction
	e.mu.Unlock()

	if e.cfg.Broker != nil {
		bctx, cancel := context.WithTimeout(ctx, e.cfg.BrokerTimeout)
		res := e.cfg.Broker.PlaceOrder(bctx, broker.OrderPayload{
			TradeID:      t.ID,
			Symbol:       e.brokerSymbol(t.Pair),
			Direction:    string(t.Direction),
			Price:        t.EntryPrice,
			StopLoss:     t.StopLoss,
			TakeProfit:   t.TakeProfit,
			PositionSize: t.PositionSize,
		})
		cancel()
		if !res.Success {
			// Compensating rollback: undo the provisional commit entirely.
			e.mu.Lock()
			delete(e.active, t.ID)
			e.dailyRisk -= riskFraction
			e.mu.Unlock()

			reason := res.Error
			if reason == "" {
				reason = "broker rejected order"
			}
			log.Printf("execution: broker order failed for %s %s: %s", t.Direction, t.Pair, reason)
			if e.cfg.Audit != nil {
				e.cfg.Audit.Record("trade.open_failed", map[string]any{
					"trade_id": t.ID, "pair": t.Pair, "error": reason,
				})
			}
			if e.cfg.Alerts != nil {
				e.cfg.Alerts.Publish(alert.Event{
					Topic:    "execution",
					Severity: alert.SeverityWarning,
					Message:  fmt.Sprintf("broker order failed for %s %s", t.Direction, t.Pair),
					Context:  map[string]any{"trade_id": t.ID, "error": reason},
				})
			}
			return ExecuteResult{Success: false, Reason: "broker order failed: " + reason, Signal: sig}
		}
		brokerName := res.Broker
		if brokerName == "" {
			brokerName = e.cfg.Broker.Name()
		}
		// The trade is already visible in e.active; broker fields go in
		// under the lock like every other mutation.
		e.mu.Lock()
		t.Broker = brokerName
		t.BrokerOrderID = res.OrderID
		e.mu.Unlock()
	}

	e.mu.Lock()
	snap := *t
	e.mu.Unlock()

	e.persist(snap)
	if e.cfg.RefreshRiskSnapshot != nil {
		e.cfg.RefreshRiskSnapshot()
	}
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(events.EventTradeOpened, snap)
	}
	if e.cfg.Audit != nil {
		e.cfg.Audit.Record("trade.opened", map[string]any{
			"trade_id": snap.ID, "pair": snap.Pair, "direction": snap.Direction,
			"entry": snap.EntryPrice, "sl": snap.StopLoss, "tp": snap.TakeProfit,
		})
	}
	log.Printf("execution: opened %s %s @ %.5f sl=%.5f tp=%.5f size=%.2f",
		snap.Direction, snap.Pair, snap.EntryPrice, snap.StopLoss, snap.TakeProfit, snap.PositionSize)

	return ExecuteResult{Success: true, Trade: &snap, Signal: sig}
}

// ManageActiveTrades runs one management tick over every open trade. A
// failure managing one trade is logged and never blocks the others. At most
// once per ReconcileMinWait it also schedules a broker reconciliation pass.
func (e *Engine) ManageActiveTrades(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.manageTrade(ctx, id); err != nil {
			log.Printf("execution: manage trade %s: %v", id, err)
		}
	}

	var due bool
	e.mu.Lock()
	if e.cfg.ScheduleReconciliation != nil && time.Since(e.lastSync) >= e.cfg.ReconcileMinWait {
		e.lastSync = time.Now()
		due = true
	}
	e.mu.Unlock()
	if due {
		e.cfg.ScheduleReconciliation()
	}
}

func (e *Engine) manageTrade(ctx context.Context, id string) error {
	e.mu.Lock()
	t, ok := e.active[id]
	if !ok || t.Status != "open" {
		e.mu.Unlock()
		return nil
	}
	pair := t.Pair
	e.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PriceTimeout)
	price, err := e.cfg.Prices.Price(pctx, pair)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch price for %s: %w", pair, err)
	}

	var adjusted, shouldClose bool
	var closeReason string

	// The transitions below are order-sensitive: breakeven mutates the
	// stop-loss the close check reads afterwards.
	e.mu.Lock()
	if t, ok = e.active[id]; !ok || t.Status != "open" {
		e.mu.Unlock()
		return nil
	}
	t.CurrentPnL = ComputePnL(t.Direction, t.EntryPrice, price, t.PositionSize, t.PipSize)

	if !t.MovedToBreakeven && e.breakevenReached(t, price) {
		t.StopLoss = t.EntryPrice
		t.MovedToBreakeven = true
		adjusted = true
		log.Printf("execution: %s %s moved to breakeven at %.5f", t.Direction, t.Pair, price)
	}

	if updateTrailingStop(t, price) {
		adjusted = true
	}

	if shouldCloseTrade(t, price) {
		shouldClose = true
		closeReason = closeReasonFor(t, price)
	}
	snap := *t
	e.mu.Unlock()

	if adjusted {
		if e.cfg.Bus != nil {
			e.cfg.Bus.Publish(events.EventTradeAdjusted, snap)
		}
		if e.cfg.Broker != nil && snap.BrokerOrderID != "" {
			bctx, cancel := context.WithTimeout(ctx, e.cfg.BrokerTimeout)
			res := e.cfg.Broker.ModifyPosition(bctx, broker.ModifyPayload{
				OrderID:    snap.BrokerOrderID,
				Symbol:     e.brokerSymbol(pair),
				StopLoss:   snap.StopLoss,
				TakeProfit: snap.TakeProfit,
			})
			cancel()
			if !res.Success {
				log.Printf("execution: broker stop modify failed for %s: %s", id, res.Error)
			}
		}
	}

	if shouldClose {
		e.CloseTrade(ctx, id, price, closeReason)
	}
	return nil
}

// CloseTrade finalizes a position. Missing or already-closing ids are a
// no-op returning nil (idempotent). Broker-side close failure is recorded on
// the trade but never blocks the local closure; reconciliation settles the
// difference later.
func (e *Engine) CloseTrade(ctx context.Context, id string, closePrice float64, reason string) *Trade {
	e.mu.Lock()
	t, ok := e.active[id]
	if !ok || t.Status != "open" {
		e.mu.Unlock()
		return nil
	}
	t.Status = "closing"
	pair, orderID, manualAck := t.Pair, t.BrokerOrderID, t.ManualCloseAck
	e.mu.Unlock()

	// The broker call runs with the lock released; the trade stays visible
	// through ActiveTrades meanwhile, so any failure is carried back into
	// the locked finalization below instead of written here.
	var closeErr string
	if e.cfg.Broker != nil && orderID != "" && !manualAck {
		bctx, cancel := context.WithTimeout(ctx, e.cfg.BrokerTimeout)
		res := e.cfg.Broker.ClosePosition(bctx, broker.ClosePayload{
			TradeID: id,
			OrderID: orderID,
			Symbol:  e.brokerSymbol(pair),
			Price:   closePrice,
		})
		cancel()
		if !res.Success {
			closeErr = res.Error
			log.Printf("execution: broker close failed for %s: %s (closing locally)", id, closeErr)
			if e.cfg.Alerts != nil {
				e.cfg.Alerts.Publish(alert.Event{
					Topic:    "execution",
					Severity: alert.SeverityCritical,
					Message:  "broker close failed for " + pair,
					Context:  map[string]any{"trade_id": id, "error": closeErr},
				})
			}
		}
	}

	now := time.Now().UTC()
	e.mu.Lock()
	t.Status = "closed"
	t.ClosePrice = closePrice
	t.CloseTime = now
	t.CloseReason = reason
	if closeErr != "" {
		t.BrokerCloseError = closeErr
	}
	pnl := ComputePnL(t.Direction, t.EntryPrice, closePrice, t.PositionSize, t.PipSize)
	t.FinalPnL = &pnl
	t.CurrentPnL = pnl
	t.Duration = now.Sub(t.OpenTime)
	delete(e.active, id)
	e.history = append(e.history, t)
	snap := *t
	e.mu.Unlock()

	e.persist(snap)
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(events.EventTradeClosed, snap)
	}
	if e.cfg.Audit != nil {
		e.cfg.Audit.Record("trade.closed", map[string]any{
			"trade_id": snap.ID, "pair": snap.Pair, "reason": reason,
			"pips": pnl.Formatted().Pips, "amount": pnl.Formatted().Amount,
		})
	}
	if e.cfg.OnTradeClosed != nil {
		e.cfg.OnTradeClosed(snap)
	}
	log.Printf("execution: closed %s %s @ %.5f (%s) pnl=%s pips",
		snap.Direction, snap.Pair, closePrice, reason, pnl.Formatted().Pips)
	return &snap
}

// AcknowledgeManualClose marks a trade as already closed broker-side by an
// operator, so CloseTrade skips the broker call.
func (e *Engine) AcknowledgeManualClose(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.active[id]
	if !ok {
		return false
	}
	t.ManualCloseAck = true
	return true
}

func (e *Engine) breakevenReached(t *Trade, price float64) bool {
	target := t.TakeProfit - t.EntryPrice
	move := price - t.EntryPrice
	if t.Direction == signal.Sell {
		target, move = -target, -move
	}
	if target <= 0 {
		return false
	}
	// Inclusive boundary (spec §4.1): tolerate float64 rounding so an
	// exactly-30% move still triggers.
	return move-target*e.cfg.BreakevenRatio >= -1e-9
}

// updateTrailingStop ratchets the stop toward profit once the activation
// level is reached. The stop only ever tightens.
func updateTrailingStop(t *Trade, price float64) bool {
	if !t.Trailing.Enabled || t.Trailing.TrailingDistance <= 0 {
		return false
	}
	move := price - t.EntryPrice
	candidate := price - t.Trailing.TrailingDistance
	if t.Direction == signal.Sell {
		move = t.EntryPrice - price
		candidate = price + t.Trailing.TrailingDistance
	}
	if move < t.Trailing.ActivationLevel {
		return false
	}
	if t.Direction == signal.Buy && candidate > t.StopLoss {
		t.StopLoss = candidate
		t.TrailingEngaged = true
		return true
	}
	if t.Direction == signal.Sell && candidate < t.StopLoss {
		t.StopLoss = candidate
		t.TrailingEngaged = true
		return true
	}
	return false
}

// shouldCloseTrade checks stop and target with inclusive boundaries.
func shouldCloseTrade(t *Trade, price float64) bool {
	if t.Direction == signal.Buy {
		return price <= t.StopLoss || price >= t.TakeProfit
	}
	return price >= t.StopLoss || price <= t.TakeProfit
}

func closeReasonFor(t *Trade, price float64) string {
	if t.Direction == signal.Buy {
		if price >= t.TakeProfit {
			return "target_hit"
		}
	} else if price <= t.TakeProfit {
		return "target_hit"
	}
	// Report a trailing exit only when the stop actually moved; a trade
	// whose trailing never engaged died on its original stop.
	if t.MovedToBreakeven || t.TrailingEngaged {
		return "trailing_stop"
	}
	return "stop_loss"
}

// ActiveTrades returns a snapshot copy of open trades.
func (e *Engine) ActiveTrades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, 0, len(e.active))
	for _, t := range e.active {
		out = append(out, *t)
	}
	return out
}

// ActiveTrade returns a snapshot of a single open trade.
func (e *Engine) ActiveTrade(id string) (Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.active[id]; ok {
		return *t, true
	}
	return Trade{}, false
}

// History returns a snapshot copy of closed trades, oldest first.
func (e *Engine) History() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.history))
	for i, t := range e.history {
		out[i] = *t
	}
	return out
}

// Quote fetches a current price for the pair with the engine's price timeout.
func (e *Engine) Quote(ctx context.Context, pair string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PriceTimeout)
	defer cancel()
	return e.cfg.Prices.Price(ctx, pair)
}

// DailyRisk returns the accumulated risk fraction committed today.
func (e *Engine) DailyRisk() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyRisk
}

// ResetDailyRisk zeroes the daily risk budget; called by the midnight scheduler.
func (e *Engine) ResetDailyRisk() {
	e.mu.Lock()
	prev := e.dailyRisk
	e.dailyRisk = 0
	e.mu.Unlock()
	log.Printf("execution: daily risk reset (was %.4f)", prev)
}

func (e *Engine) brokerSymbol(pair string) string {
	if e.cfg.Rules != nil {
		return e.cfg.Rules.ResolveBrokerSymbol(pair)
	}
	return pair
}

func (e *Engine) persist(t Trade) {
	if e.cfg.DB == nil {
		return
	}
	rec := db.TradeRecord{
		ID:            t.ID,
		Pair:          t.Pair,
		Direction:     string(t.Direction),
		EntryPrice:    t.EntryPrice,
		StopLoss:      t.StopLoss,
		TakeProfit:    t.TakeProfit,
		PositionSize:  t.PositionSize,
		RiskFraction:  t.RiskFraction,
		Status:        t.Status,
		Broker:        t.Broker,
		BrokerOrderID: t.BrokerOrderID,
		OpenTime:      t.OpenTime,
		CloseReason:   t.CloseReason,
	}
	if t.Status == "closed" {
		ct := t.CloseTime
		cp := t.ClosePrice
		rec.CloseTime = &ct
		rec.ClosePrice = &cp
		if t.FinalPnL != nil {
			pips := t.FinalPnL.Pips
			amt := t.FinalPnL.Amount
			rec.FinalPnLPips = &pips
			rec.FinalPnLAmt = &amt
		}
		rec.DurationMs = t.Duration.Milliseconds()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.cfg.DB.UpsertTrade(ctx, rec); err != nil {
			log.Printf("execution: persist trade %s error: %v", rec.ID, err)
		}
	}()
}
