// Package alert fans operational events out to notification channels with
// time-bounded deduplication, so sustained fault conditions do not storm
// Slack or email.
package alert

import (
	"log"
	"sync"
	"time"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an ephemeral alert. Channels, when set, restricts delivery to the
// intersection with available channels.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Topic     string         `json:"topic"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Body      string         `json:"body,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Channels  []string       `json:"channels,omitempty"`
	DedupeKey string         `json:"-"`
}

// Channel delivers an alert over one transport.
type Channel interface {
	Name() string
	Send(e Event) error
}

// Bus deduplicates and fans out alerts. One channel's failure never blocks
// delivery on the others.
type Bus struct {
	dedupeWindow time.Duration
	channels     []Channel

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewBus creates the dispatcher. The log channel is always registered first.
func NewBus(dedupeWindow time.Duration, channels ...Channel) *Bus {
	if dedupeWindow <= 0 {
		dedupeWindow = 5 * time.Minute
	}
	all := append([]Channel{LogChannel{}}, channels...)
	return &Bus{
		dedupeWindow: dedupeWindow,
		channels:     all,
		recent:       make(map[string]time.Time),
	}
}

// Publish dispatches the event unless an identical key was seen within the
// dedupe window. Returns true once dispatched, regardless of per-channel
// outcomes; false when suppressed as a duplicate.
func (b *Bus) Publish(e Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	key := e.DedupeKey
	if key == "" {
		key = e.Topic + "|" + string(e.Severity) + "|" + e.Message
	}

	now := time.Now()
	b.mu.Lock()
	// Amortized pruning keeps the map bounded without a separate timer.
	for k, seen := range b.recent {
		if now.Sub(seen) > b.dedupeWindow {
			delete(b.recent, k)
		}
	}
	if seen, ok := b.recent[key]; ok && now.Sub(seen) <= b.dedupeWindow {
		b.mu.Unlock()
		return false
	}
	b.recent[key] = now
	b.mu.Unlock()

	for _, ch := range b.resolveChannels(e) {
		// Per-channel isolation: a failing transport only logs.
		if err := ch.Send(e); err != nil {
			log.Printf("alert: channel %s failed: %v", ch.Name(), err)
		}
	}
	return true
}

func (b *Bus) resolveChannels(e Event) []Channel {
	if len(e.Channels) == 0 {
		return b.channels
	}
	wanted := make(map[string]bool, len(e.Channels))
	for _, name := range e.Channels {
		wanted[name] = true
	}
	var out []Channel
	for _, ch := range b.channels {
		if wanted[ch.Name()] {
			out = append(out, ch)
		}
	}
	return out
}

// AvailableChannels lists the registered transports.
func (b *Bus) AvailableChannels() []string {
	names := make([]string, len(b.channels))
	for i, ch := range b.channels {
		names[i] = ch.Name()
	}
	return names
}
