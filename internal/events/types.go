package events

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventSignalReceived Event = "signal.received"
	EventSignalRejected Event = "signal.rejected"
	EventTradeOpened    Event = "trade.opened"
	EventTradeAdjusted  Event = "trade.adjusted"
	EventTradeClosed    Event = "trade.closed"
	EventAlert          Event = "alert"
	EventJobDead        Event = "job.dead"
)
