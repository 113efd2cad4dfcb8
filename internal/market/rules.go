// Package market resolves symbol naming, trading sessions, and per-order
// admissibility against broker metadata. Everything here is pure lookup and
// clock math; no I/O after construction.
package market

import (
	"strings"
	"time"
)

// Precision describes instrument quoting granularity.
type Precision struct {
	Digits  int     `yaml:"digits"`
	PipSize float64 `yaml:"pip_size"`
}

// Rules is built once from broker metadata and answers admissibility questions.
type Rules struct {
	allowlist map[string]bool
	aliases   map[string]string // canonical -> broker ticker
	reverse   map[string]string // broker ticker -> canonical
	suffix    string

	sundayOpenUTC  int // hour of day, inclusive open
	fridayCloseUTC int // hour of day, inclusive close
	rolloverStart  int // minutes past midnight UTC
	rolloverEnd    int

	enforceSessions bool
	blockRollover   bool

	precisions map[string]Precision
}

// NewRules builds a resolver from metadata. Missing fields fall back to
// conventional FX defaults (22:00 Sunday open, 21:00 Friday close, rollover
// 21:55-22:05 UTC).
func NewRules(meta Metadata) *Rules {
	r := &Rules{
		allowlist:       make(map[string]bool, len(meta.Allowlist)),
		aliases:         make(map[string]string, len(meta.Aliases)),
		reverse:         make(map[string]string, len(meta.Aliases)),
		suffix:          strings.ToUpper(meta.Suffix),
		sundayOpenUTC:   meta.SundayOpenUTC,
		fridayCloseUTC:  meta.FridayCloseUTC,
		rolloverStart:   meta.RolloverStartMin,
		rolloverEnd:     meta.RolloverEndMin,
		enforceSessions: meta.EnforceSessions,
		blockRollover:   meta.BlockRollover,
		precisions:      make(map[string]Precision, len(meta.Precisions)),
	}
	if r.sundayOpenUTC == 0 {
		r.sundayOpenUTC = 22
	}
	if r.fridayCloseUTC == 0 {
		r.fridayCloseUTC = 21
	}
	if r.rolloverStart == 0 && r.rolloverEnd == 0 {
		r.rolloverStart = 21*60 + 55
		r.rolloverEnd = 22*60 + 5
	}
	for _, s := range meta.Allowlist {
		r.allowlist[strings.ToUpper(s)] = true
	}
	for canonical, broker := range meta.Aliases {
		c := strings.ToUpper(canonical)
		b := strings.ToUpper(broker)
		r.aliases[c] = b
		r.reverse[b] = c
	}
	for sym, p := range meta.Precisions {
		r.precisions[strings.ToUpper(sym)] = p
	}
	return r
}

// NormalizeSymbol maps a broker-specific ticker back to its canonical name,
// stripping the configured suffix and applying the alias table.
func (r *Rules) NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if r.suffix != "" {
		s = strings.TrimSuffix(s, r.suffix)
	}
	if canonical, ok := r.reverse[s]; ok {
		return canonical
	}
	return s
}

// ResolveBrokerSymbol maps a canonical name to the broker-specific ticker,
// applying the alias table and appending the configured suffix.
func (r *Rules) ResolveBrokerSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if broker, ok := r.aliases[s]; ok {
		s = broker
	}
	return s + r.suffix
}

// Allowed reports allowlist membership for a canonical or broker symbol.
func (r *Rules) Allowed(symbol string) bool {
	if len(r.allowlist) == 0 {
		return true
	}
	return r.allowlist[r.NormalizeSymbol(symbol)]
}

var cryptoBases = []string{"BTC", "ETH", "LTC", "XRP", "SOL", "ADA", "DOGE", "BNB"}

// IsCrypto reports whether a symbol trades around the clock.
func IsCrypto(symbol string) bool {
	s := strings.ToUpper(symbol)
	for _, base := range cryptoBases {
		if strings.HasPrefix(s, base) {
			return true
		}
	}
	return false
}

// IsMarketOpen applies the weekly FX session model: closed all Saturday,
// closed Sunday before the UTC open hour, closed Friday at or after the UTC
// close hour. Crypto is always open. Holidays are not modeled.
func (r *Rules) IsMarketOpen(symbol string, t time.Time) bool {
	if IsCrypto(symbol) {
		return true
	}
	utc := t.UTC()
	switch utc.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return utc.Hour() >= r.sundayOpenUTC
	case time.Friday:
		return utc.Hour() < r.fridayCloseUTC
	default:
		return true
	}
}

// IsRolloverWindow checks the daily UTC settlement window. A start greater
// than end means the window spans midnight.
func (r *Rules) IsRolloverWindow(t time.Time) bool {
	utc := t.UTC()
	minutes := utc.Hour()*60 + utc.Minute()
	if r.rolloverStart <= r.rolloverEnd {
		return minutes >= r.rolloverStart && minutes <= r.rolloverEnd
	}
	return minutes >= r.rolloverStart || minutes <= r.rolloverEnd
}

// OrderCheck is the input to ValidateOrder.
type OrderCheck struct {
	Symbol string
}

// ValidationResult carries the admissibility verdict and the first failing reason.
type ValidationResult struct {
	Allowed bool
	Reasons []string
}

// ValidateOrder runs the admissibility checks in fixed order: symbol presence,
// allowlist membership, market open, rollover block. The order is significant
// so rejection messages stay deterministic.
func (r *Rules) ValidateOrder(order OrderCheck, t time.Time) ValidationResult {
	if strings.TrimSpace(order.Symbol) == "" {
		return ValidationResult{Reasons: []string{"missing symbol"}}
	}
	if !r.Allowed(order.Symbol) {
		return ValidationResult{Reasons: []string{"symbol not in allowlist: " + strings.ToUpper(order.Symbol)}}
	}
	if r.enforceSessions && !r.IsMarketOpen(order.Symbol, t) {
		return ValidationResult{Reasons: []string{"market closed for " + r.NormalizeSymbol(order.Symbol)}}
	}
	if r.blockRollover && !IsCrypto(order.Symbol) && r.IsRolloverWindow(t) {
		return ValidationResult{Reasons: []string{"order blocked during rollover window"}}
	}
	return ValidationResult{Allowed: true}
}

// GetPrecision returns quoting granularity for a symbol. JPY-quoted pairs use
// two-decimal pips; everything else defaults to standard four-decimal FX
// quoting unless the metadata overrides it.
func (r *Rules) GetPrecision(symbol string) Precision {
	s := r.NormalizeSymbol(symbol)
	if p, ok := r.precisions[s]; ok {
		return p
	}
	if strings.HasSuffix(s, "JPY") {
		return Precision{Digits: 3, PipSize: 0.01}
	}
	if IsCrypto(s) {
		return Precision{Digits: 2, PipSize: 1}
	}
	return Precision{Digits: 5, PipSize: 0.0001}
}
