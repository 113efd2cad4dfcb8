package broker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperConfig tunes the simulated venue.
type PaperConfig struct {
	InitialBalance float64
	SlippageBps    float64 // noise applied to fills, basis points
	LatencyMin     time.Duration
	LatencyMax     time.Duration
	FailRate       float64 // 0..1, injected placement failures for testing
}

// Paper simulates a broker for dry-run operation. Fills are immediate at the
// requested price plus optional slippage noise.
type Paper struct {
	cfg PaperConfig

	mu        sync.RWMutex
	balance   float64
	positions map[string]*paperPosition // keyed by order id
}

type paperPosition struct {
	OrderID    string
	Symbol     string
	Side       string
	Size       float64
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time
}

// NewPaper creates a simulated venue.
func NewPaper(cfg PaperConfig) *Paper {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	if cfg.LatencyMax > 0 && cfg.LatencyMin > cfg.LatencyMax {
		cfg.LatencyMin, cfg.LatencyMax = cfg.LatencyMax, cfg.LatencyMin
	}
	return &Paper{
		cfg:       cfg,
		balance:   cfg.InitialBalance,
		positions: make(map[string]*paperPosition),
	}
}

func (p *Paper) Name() string { return "paper" }

// PlaceOrder fills at the requested price with simulated slippage and latency.
func (p *Paper) PlaceOrder(ctx context.Context, req OrderPayload) OrderResult {
	if err := p.simulateLatency(ctx); err != nil {
		return OrderResult{Error: err.Error()}
	}
	// Top-level rand is goroutine-safe; placements can arrive concurrently.
	if p.cfg.FailRate > 0 && rand.Float64() < p.cfg.FailRate {
		return OrderResult{Error: "simulated placement failure"}
	}
	if req.PositionSize <= 0 {
		return OrderResult{Error: "position size must be positive"}
	}

	price := req.Price
	if slip := p.cfg.SlippageBps / 10000.0; slip > 0 {
		noise := rand.Float64() * slip
		if strings.EqualFold(req.Direction, "BUY") {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	pos := &paperPosition{
		OrderID:    uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       strings.ToUpper(req.Direction),
		Size:       req.PositionSize,
		Entry:      price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   time.Now(),
	}

	p.mu.Lock()
	p.positions[pos.OrderID] = pos
	p.mu.Unlock()

	log.Printf("paper: filled %s %s size=%.2f @ %.5f", pos.Side, pos.Symbol, pos.Size, pos.Entry)
	return OrderResult{Success: true, Broker: p.Name(), OrderID: pos.OrderID}
}

// ClosePosition removes the venue-side position and settles cash PnL.
func (p *Paper) ClosePosition(ctx context.Context, req ClosePayload) CloseResult {
	if err := p.simulateLatency(ctx); err != nil {
		return CloseResult{Error: err.Error()}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[req.OrderID]
	if !ok {
		return CloseResult{Error: fmt.Sprintf("unknown order %s", req.OrderID)}
	}
	delete(p.positions, req.OrderID)

	diff := req.Price - pos.Entry
	if pos.Side == "SELL" {
		diff = -diff
	}
	p.balance += diff * pos.Size
	log.Printf("paper: closed %s %s @ %.5f balance=%.2f", pos.Side, pos.Symbol, req.Price, p.balance)
	return CloseResult{Success: true, OrderID: pos.OrderID}
}

// ModifyPosition updates stops in place.
func (p *Paper) ModifyPosition(ctx context.Context, req ModifyPayload) ModifyResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[req.OrderID]
	if !ok {
		return ModifyResult{Error: fmt.Sprintf("unknown order %s", req.OrderID)}
	}
	if req.StopLoss > 0 {
		pos.StopLoss = req.StopLoss
	}
	if req.TakeProfit > 0 {
		pos.TakeProfit = req.TakeProfit
	}
	return ModifyResult{Success: true}
}

// Positions reports venue-side open positions for reconciliation.
func (p *Paper) Positions(ctx context.Context) ([]Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, Position{
			OrderID: pos.OrderID,
			Symbol:  pos.Symbol,
			Side:    pos.Side,
			Size:    pos.Size,
			Entry:   pos.Entry,
		})
	}
	return out, nil
}

// Balance returns simulated account cash.
func (p *Paper) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

func (p *Paper) simulateLatency(ctx context.Context) error {
	if p.cfg.LatencyMax <= 0 {
		return nil
	}
	span := p.cfg.LatencyMax - p.cfg.LatencyMin
	delay := p.cfg.LatencyMin
	if span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
