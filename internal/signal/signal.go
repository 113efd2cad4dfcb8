// Package signal defines the scored trading signal handed to the execution
// engine and the validity decision attached to it.
package signal

import "time"

// Direction of a signal or trade.
type Direction string

const (
	Buy     Direction = "BUY"
	Sell    Direction = "SELL"
	Neutral Direction = "NEUTRAL"
)

// DecisionState classifies what the engine may do with a signal.
type DecisionState string

const (
	StateEnter   DecisionState = "ENTER"
	StateMonitor DecisionState = "WAIT_MONITOR"
	StateBlocked DecisionState = "NO_TRADE_BLOCKED"
)

// Components carries the analyzer scores fused into the final score.
// A nil pointer means the analyzer produced no input this cycle.
type Components struct {
	Technical *float64 `json:"technical,omitempty"`
	Economic  *float64 `json:"economic,omitempty"`
	News      *float64 `json:"news,omitempty"`
}

// TrailingStop configures the ratchet applied after entry.
type TrailingStop struct {
	Enabled          bool    `json:"enabled"`
	ActivationLevel  float64 `json:"activationLevel"`  // price move before trailing starts
	TrailingDistance float64 `json:"trailingDistance"` // gap kept behind current price
}

// Entry holds the prices the execution engine opens with.
type Entry struct {
	Price        float64      `json:"price"`
	StopLoss     float64      `json:"stopLoss"`
	TakeProfit   float64      `json:"takeProfit"`
	TrailingStop TrailingStop `json:"trailingStop"`
}

// RiskManagement is the sizing block computed upstream.
type RiskManagement struct {
	PositionSize float64 `json:"positionSize"`
	RiskFraction float64 `json:"riskFraction"`
}

// Decision is the machine-readable outcome of validity evaluation.
type Decision struct {
	State    DecisionState `json:"state"`
	Score    float64       `json:"score"`
	Blockers []string      `json:"blockers"`
	Missing  []string      `json:"missing"`
}

// Validity is the evaluated gate attached to a signal. Immutable once the
// signal is handed to the execution engine.
type Validity struct {
	IsValid  bool            `json:"isValid"`
	Checks   map[string]bool `json:"checks"`
	Reason   string          `json:"reason"`
	Decision Decision        `json:"decision"`
}

// Signal is a scored directional trading recommendation.
type Signal struct {
	Pair           string         `json:"pair"`
	Timestamp      time.Time      `json:"timestamp"`
	Direction      Direction      `json:"direction"`
	Strength       float64        `json:"strength"`   // 0..100
	Confidence     float64        `json:"confidence"` // 0..100
	FinalScore     float64        `json:"finalScore"`
	Components     Components     `json:"components"`
	Entry          Entry          `json:"entry"`
	RiskManagement RiskManagement `json:"riskManagement"`
	Validity       Validity       `json:"isValid"`
}
