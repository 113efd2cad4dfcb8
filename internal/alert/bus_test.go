package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingChannel struct {
	name string
	fail bool

	mu   sync.Mutex
	sent []Event
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("transport down")
	}
	r.sent = append(r.sent, e)
	return nil
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestPublishDeduplicatesWithinWindow(t *testing.T) {
	rec := &recordingChannel{name: "rec"}
	bus := NewBus(100*time.Millisecond, rec)

	event := Event{Topic: "execution", Severity: SeverityWarning, Message: "broker order failed"}

	assert.True(t, bus.Publish(event))
	assert.False(t, bus.Publish(event), "identical event inside the window must be suppressed")
	assert.Equal(t, 1, rec.count())

	time.Sleep(150 * time.Millisecond)
	assert.True(t, bus.Publish(event), "event must pass again after the window expires")
	assert.Equal(t, 2, rec.count())
}

func TestPublishDifferentSeveritiesAreDistinct(t *testing.T) {
	rec := &recordingChannel{name: "rec"}
	bus := NewBus(time.Minute, rec)

	assert.True(t, bus.Publish(Event{Topic: "x", Severity: SeverityInfo, Message: "m"}))
	assert.True(t, bus.Publish(Event{Topic: "x", Severity: SeverityCritical, Message: "m"}))
	assert.Equal(t, 2, rec.count())
}

func TestExplicitDedupeKeyOverrides(t *testing.T) {
	rec := &recordingChannel{name: "rec"}
	bus := NewBus(time.Minute, rec)

	assert.True(t, bus.Publish(Event{Topic: "a", Message: "one", DedupeKey: "same"}))
	assert.False(t, bus.Publish(Event{Topic: "b", Message: "two", DedupeKey: "same"}))
	assert.Equal(t, 1, rec.count())
}

func TestChannelFailureIsIsolated(t *testing.T) {
	failing := &recordingChannel{name: "broken", fail: true}
	healthy := &recordingChannel{name: "healthy"}
	bus := NewBus(time.Minute, failing, healthy)

	ok := bus.Publish(Event{Topic: "execution", Severity: SeverityCritical, Message: "close failed"})

	assert.True(t, ok, "delivery reports dispatched even when one channel fails")
	assert.Equal(t, 1, healthy.count())
}

func TestChannelTargetingIntersection(t *testing.T) {
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	bus := NewBus(time.Minute, a, b)

	bus.Publish(Event{Topic: "t", Message: "m", Channels: []string{"b", "missing"}})

	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
}

func TestAvailableChannelsIncludesLog(t *testing.T) {
	bus := NewBus(time.Minute, &recordingChannel{name: "rec"})
	assert.Equal(t, []string{"log", "rec"}, bus.AvailableChannels())
}
