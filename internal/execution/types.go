package execution

import (
	"context"
	"time"

	"fxcore/internal/signal"
)

// Trade is an open or closed position created from a valid signal. The
// engine's active map owns it exclusively until it moves to history.
type Trade struct {
	ID           string              `json:"id"`
	Pair         string              `json:"pair"`
	Direction    signal.Direction    `json:"direction"`
	EntryPrice   float64             `json:"entryPrice"`
	StopLoss     float64             `json:"stopLoss"`
	TakeProfit   float64             `json:"takeProfit"`
	PositionSize float64             `json:"positionSize"`
	RiskFraction float64             `json:"riskFraction"`
	OpenTime     time.Time           `json:"openTime"`
	Status       string              `json:"status"` // open, closing, closed
	Trailing     signal.TrailingStop `json:"trailingStop"`

	PipSize          float64 `json:"pipSize"`
	CurrentPnL       PnL     `json:"currentPnL"`
	MovedToBreakeven bool    `json:"movedToBreakeven"`
	TrailingEngaged  bool    `json:"trailingEngaged,omitempty"`

	Broker           string `json:"broker,omitempty"`
	BrokerOrderID    string `json:"brokerOrderId,omitempty"`
	BrokerCloseError string `json:"brokerCloseError,omitempty"`
	ManualCloseAck   bool   `json:"manualCloseAck,omitempty"`

	ClosePrice  float64       `json:"closePrice,omitempty"`
	CloseTime   time.Time     `json:"closeTime,omitempty"`
	CloseReason string        `json:"closeReason,omitempty"`
	FinalPnL    *PnL          `json:"finalPnL,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// ExecuteResult is the structured outcome of ExecuteTrade. Rejections are
// expected and carried in Reason, never as an error.
type ExecuteResult struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason,omitempty"`
	Trade   *Trade        `json:"trade,omitempty"`
	Signal  signal.Signal `json:"signal"`
}

// PriceSource provides the latest quote for a pair.
type PriceSource interface {
	Price(ctx context.Context, pair string) (float64, error)
}
