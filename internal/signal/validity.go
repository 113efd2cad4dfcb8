package signal

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"fxcore/internal/market"
)

// ValidityConfig holds thresholds for the decision gate.
type ValidityConfig struct {
	MinConfidence   float64
	MinStrength     float64
	MaxRiskFraction float64
}

// DefaultValidityConfig matches the production gate settings.
func DefaultValidityConfig() ValidityConfig {
	return ValidityConfig{
		MinConfidence:   55,
		MinStrength:     40,
		MaxRiskFraction: 0.05,
	}
}

// ValidityEngine classifies scored signals into ENTER / WAIT_MONITOR /
// NO_TRADE_BLOCKED. Kill switches are operator-controlled and may change at
// runtime; everything else is pure evaluation.
type ValidityEngine struct {
	cfg   ValidityConfig
	rules *market.Rules

	mu         sync.RWMutex
	globalKill bool
	pairKills  map[string]bool
}

// NewValidityEngine creates the gate. rules may be nil, in which case
// market admissibility is not checked.
func NewValidityEngine(cfg ValidityConfig, rules *market.Rules) *ValidityEngine {
	if cfg.MaxRiskFraction <= 0 {
		cfg.MaxRiskFraction = 0.05
	}
	return &ValidityEngine{
		cfg:       cfg,
		rules:     rules,
		pairKills: make(map[string]bool),
	}
}

// SetGlobalKillSwitch forcibly blocks all signal execution.
func (e *ValidityEngine) SetGlobalKillSwitch(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globalKill = on
	log.Printf("kill switch (global): %v", on)
}

// SetPairKillSwitch blocks execution for a single pair.
func (e *ValidityEngine) SetPairKillSwitch(pair string, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pairKills[strings.ToUpper(pair)] = on
	log.Printf("kill switch (%s): %v", strings.ToUpper(pair), on)
}

// KillSwitches reports the current switch state.
func (e *ValidityEngine) KillSwitches() (global bool, pairs map[string]bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]bool, len(e.pairKills))
	for k, v := range e.pairKills {
		if v {
			out[k] = true
		}
	}
	return e.globalKill, out
}

// Evaluate attaches a validity decision to the signal and returns it.
// Hard-check failures and kill switches yield NO_TRADE_BLOCKED; missing
// analyzer inputs or a score below threshold yield WAIT_MONITOR; only a
// fully clean signal is ENTER.
func (e *ValidityEngine) Evaluate(sig Signal, now time.Time) Validity {
	checks := make(map[string]bool)
	var blockers []string
	var missing []string

	// Hard checks. Each must pass for the signal to be executable at all.
	checks["direction"] = sig.Direction == Buy || sig.Direction == Sell
	if !checks["direction"] {
		blockers = append(blockers, "direction is not tradeable")
	}

	checks["entry_price"] = sig.Entry.Price > 0
	if !checks["entry_price"] {
		blockers = append(blockers, "entry price missing or non-positive")
	}

	checks["stops"] = stopsOnCorrectSide(sig)
	if !checks["stops"] {
		blockers = append(blockers, "stop-loss/take-profit on wrong side of entry")
	}

	checks["risk_fraction"] = sig.RiskManagement.RiskFraction >= 0 &&
		sig.RiskManagement.RiskFraction <= e.cfg.MaxRiskFraction
	if !checks["risk_fraction"] {
		blockers = append(blockers,
			fmt.Sprintf("risk fraction %.4f exceeds cap %.4f",
				sig.RiskManagement.RiskFraction, e.cfg.MaxRiskFraction))
	}

	if e.rules != nil {
		res := e.rules.ValidateOrder(market.OrderCheck{Symbol: sig.Pair}, now)
		checks["market_rules"] = res.Allowed
		if !res.Allowed {
			blockers = append(blockers, res.Reasons...)
		}
	}

	// Kill switches.
	e.mu.RLock()
	global := e.globalKill
	pairKill := e.pairKills[strings.ToUpper(sig.Pair)]
	e.mu.RUnlock()
	checks["kill_switch"] = !global && !pairKill
	if global {
		blockers = append(blockers, "global kill switch engaged")
	}
	if pairKill {
		blockers = append(blockers, "pair kill switch engaged: "+strings.ToUpper(sig.Pair))
	}

	// Missing-input detection. Absent analyzer components leave the score
	// untrustworthy but not dangerous: monitor rather than block.
	if sig.Components.Technical == nil {
		missing = append(missing, "technical")
	}
	if sig.Components.Economic == nil {
		missing = append(missing, "economic")
	}
	if sig.Components.News == nil {
		missing = append(missing, "news")
	}
	checks["components"] = len(missing) == 0

	// Soft score thresholds.
	checks["confidence"] = sig.Confidence >= e.cfg.MinConfidence
	checks["strength"] = sig.Strength >= e.cfg.MinStrength

	v := Validity{
		Checks: checks,
		Decision: Decision{
			Score:    sig.FinalScore,
			Blockers: blockers,
			Missing:  missing,
		},
	}

	switch {
	case len(blockers) > 0:
		v.Decision.State = StateBlocked
		v.Reason = blockers[0]
	case len(missing) > 0:
		v.Decision.State = StateMonitor
		v.Reason = "awaiting analyzer inputs: " + strings.Join(missing, ", ")
	case !checks["confidence"] || !checks["strength"]:
		v.Decision.State = StateMonitor
		v.Reason = fmt.Sprintf("score below entry threshold (confidence %.0f, strength %.0f)",
			sig.Confidence, sig.Strength)
	default:
		v.Decision.State = StateEnter
		v.IsValid = true
	}

	return v
}

func stopsOnCorrectSide(sig Signal) bool {
	entry := sig.Entry
	if entry.StopLoss <= 0 || entry.TakeProfit <= 0 {
		return false
	}
	switch sig.Direction {
	case Buy:
		return entry.StopLoss < entry.Price && entry.TakeProfit > entry.Price
	case Sell:
		return entry.StopLoss > entry.Price && entry.TakeProfit < entry.Price
	default:
		return false
	}
}
