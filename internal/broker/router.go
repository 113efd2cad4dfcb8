// Package broker abstracts order routing to a trading venue. Adapters report
// expected failures through result values, never panics or errors on the
// happy/sad path.
package broker

import "context"

// OrderPayload is a request to open a position.
type OrderPayload struct {
	TradeID      string
	Symbol       string
	Direction    string // BUY or SELL
	Price        float64
	StopLoss     float64
	TakeProfit   float64
	PositionSize float64
}

// OrderResult reports placement outcome.
type OrderResult struct {
	Success bool
	Broker  string
	OrderID string
	Error   string
}

// ClosePayload is a request to close an open position.
type ClosePayload struct {
	TradeID string
	OrderID string
	Symbol  string
	Price   float64
}

// CloseResult reports closure outcome.
type CloseResult struct {
	Success bool
	OrderID string
	Error   string
}

// ModifyPayload adjusts stops on an open position.
type ModifyPayload struct {
	OrderID    string
	Symbol     string
	StopLoss   float64
	TakeProfit float64
}

// ModifyResult reports modification outcome.
type ModifyResult struct {
	Success bool
	Error   string
}

// Position is a broker-side open position, used by reconciliation.
type Position struct {
	OrderID string
	Symbol  string
	Side    string
	Size    float64
	Entry   float64
}

// Router routes orders to a venue. All calls honor ctx deadlines.
type Router interface {
	PlaceOrder(ctx context.Context, p OrderPayload) OrderResult
	ClosePosition(ctx context.Context, p ClosePayload) CloseResult
	ModifyPosition(ctx context.Context, p ModifyPayload) ModifyResult
	Name() string
}

// Reconciler is implemented by routers that can report venue-side positions.
type Reconciler interface {
	Positions(ctx context.Context) ([]Position, error)
}
