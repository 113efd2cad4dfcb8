// Package reconcile compares the engine's active trades against broker-side
// positions and surfaces (or heals) divergence. It runs as a job-queue
// handler, never on the signal path.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"fxcore/internal/alert"
	"fxcore/internal/broker"
	"fxcore/internal/execution"
	"fxcore/pkg/db"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Diffs     []Diff    `json:"diffs"`
	HasDiffs  bool      `json:"hasDiffs"`
	Synced    int       `json:"synced"`
}

// Diff is a single divergence between local and broker state.
type Diff struct {
	TradeID string `json:"tradeId,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"` // missing_on_broker, orphan_on_broker
	Synced  bool   `json:"synced"`
	Detail  string `json:"detail,omitempty"`
}

// Service runs reconciliation passes.
type Service struct {
	broker   broker.Reconciler
	engine   *execution.Engine
	database *db.Database
	alerts   *alert.Bus
	autoSync bool
}

// NewService creates a reconciliation service. autoSync closes local trades
// whose broker-side position has disappeared.
func NewService(rec broker.Reconciler, engine *execution.Engine, database *db.Database, alerts *alert.Bus, autoSync bool) *Service {
	return &Service{
		broker:   rec,
		engine:   engine,
		database: database,
		alerts:   alerts,
		autoSync: autoSync,
	}
}

// Run performs one pass. Suitable as a jobqueue handler body.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{Timestamp: time.Now().UTC()}
	if s.broker == nil || s.engine == nil {
		return report, nil
	}

	positions, err := s.broker.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch broker positions: %w", err)
	}

	byOrder := make(map[string]broker.Position, len(positions))
	for _, p := range positions {
		byOrder[p.OrderID] = p
	}

	matched := make(map[string]bool, len(positions))
	for _, t := range s.engine.ActiveTrades() {
		if t.BrokerOrderID == "" {
			continue // local-only trade, nothing to compare
		}
		if _, ok := byOrder[t.BrokerOrderID]; ok {
			matched[t.BrokerOrderID] = true
			continue
		}
		diff := Diff{
			TradeID: t.ID,
			OrderID: t.BrokerOrderID,
			Symbol:  t.Pair,
			Kind:    "missing_on_broker",
			Detail:  "active trade has no broker-side position",
		}
		if s.autoSync {
			// Broker already flat: close the local book at last entry-known
			// price so state converges. The close skips the broker call.
			s.engine.AcknowledgeManualClose(t.ID)
			if closed := s.engine.CloseTrade(ctx, t.ID, t.EntryPrice, "reconciliation_sync"); closed != nil {
				diff.Synced = true
				report.Synced++
			}
		}
		report.Diffs = append(report.Diffs, diff)
	}

	for _, p := range positions {
		if matched[p.OrderID] {
			continue
		}
		report.Diffs = append(report.Diffs, Diff{
			OrderID: p.OrderID,
			Symbol:  p.Symbol,
			Kind:    "orphan_on_broker",
			Detail:  fmt.Sprintf("broker position %s %.2f has no local trade", p.Side, p.Size),
		})
	}

	report.HasDiffs = len(report.Diffs) > 0
	s.handleReport(ctx, report)
	return report, nil
}

func (s *Service) handleReport(ctx context.Context, report *Report) {
	if !report.HasDiffs {
		log.Println("reconcile: all positions match")
		return
	}

	log.Printf("reconcile: %d differences (%d auto-synced)", len(report.Diffs), report.Synced)
	for _, d := range report.Diffs {
		log.Printf("  %s %s: %s", d.Kind, d.Symbol, d.Detail)
	}

	if s.alerts != nil {
		s.alerts.Publish(alert.Event{
			Topic:    "reconciliation",
			Severity: alert.SeverityWarning,
			Message:  fmt.Sprintf("%d position differences detected", len(report.Diffs)),
			Context:  map[string]any{"synced": report.Synced},
		})
	}

	if s.database != nil {
		detail, err := json.Marshal(report.Diffs)
		if err != nil {
			detail = []byte("[]")
		}
		if err := s.database.InsertReconciliationReport(ctx, len(report.Diffs), report.Synced, string(detail)); err != nil {
			log.Printf("reconcile: store report error: %v", err)
		}
	}
}
