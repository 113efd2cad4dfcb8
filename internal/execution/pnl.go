package execution

import (
	"strconv"

	"fxcore/internal/signal"
)

// PnL carries unrealized or realized profit in canonical numeric form.
// Presentation rounding lives in Formatted, not here.
type PnL struct {
	Pips       float64 `json:"pips"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// FormattedPnL is the display form: 1 decimal for pips, 2 for amount and
// percentage. Kept as a stable contract for dashboards and alerts.
type FormattedPnL struct {
	Pips       string `json:"pips"`
	Amount     string `json:"amount"`
	Percentage string `json:"percentage"`
}

// ComputePnL calculates profit for a position at the given price. pipSize
// comes from market rules so JPY-quoted pairs report correct pip counts;
// zero falls back to standard four-decimal quoting.
func ComputePnL(direction signal.Direction, entry, current, positionSize, pipSize float64) PnL {
	if pipSize <= 0 {
		pipSize = 0.0001
	}
	diff := current - entry
	if direction == signal.Sell {
		diff = entry - current
	}
	p := PnL{
		Pips:   diff / pipSize,
		Amount: diff * positionSize,
	}
	if entry != 0 {
		p.Percentage = diff / entry * 100
	}
	return p
}

// Formatted renders the PnL with the fixed rounding contract.
func (p PnL) Formatted() FormattedPnL {
	return FormattedPnL{
		Pips:       strconv.FormatFloat(p.Pips, 'f', 1, 64),
		Amount:     strconv.FormatFloat(p.Amount, 'f', 2, 64),
		Percentage: strconv.FormatFloat(p.Percentage, 'f', 2, 64),
	}
}
