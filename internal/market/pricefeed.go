package market

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"fxcore/internal/events"
)

// Tick is a single quote published to the bus.
type Tick struct {
	Pair  string    `json:"pair"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// SimFeed generates synthetic quotes for local development and paper trading.
// It keeps a last-price cache so it can also serve as the engine's price source.
type SimFeed struct {
	Bus      *events.Bus
	Pairs    []string
	Interval time.Duration

	mu     sync.RWMutex
	prices map[string]float64
}

var simStartPrices = map[string]float64{
	"EURUSD": 1.1000,
	"GBPUSD": 1.2700,
	"USDJPY": 147.50,
	"XAUUSD": 2400.0,
	"BTCUSD": 62000.0,
}

func (f *SimFeed) Start(ctx context.Context) {
	if f.Bus == nil {
		log.Println("sim feed: bus not set")
		return
	}
	if len(f.Pairs) == 0 {
		f.Pairs = []string{"EURUSD"}
	}
	if f.Interval == 0 {
		f.Interval = time.Second
	}

	f.mu.Lock()
	f.prices = make(map[string]float64, len(f.Pairs))
	for _, p := range f.Pairs {
		start, ok := simStartPrices[p]
		if !ok {
			start = 1.0
		}
		f.prices[p] = start
	}
	f.mu.Unlock()

	go func() {
		t := time.NewTicker(f.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				for _, pair := range f.Pairs {
					f.mu.Lock()
					price := f.prices[pair]
					// simple random walk, ~2bps per tick
					price *= 1 + (rand.Float64()*2-1)*0.0002
					f.prices[pair] = price
					f.mu.Unlock()
					f.Bus.Publish(events.EventPriceTick, Tick{Pair: pair, Price: price, Time: now})
				}
			}
		}
	}()
}

// Price returns the last known quote for a pair.
func (f *SimFeed) Price(ctx context.Context, pair string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[pair]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", pair)
	}
	return price, nil
}

// Set overrides a quote; used by tests and manual scenarios.
func (f *SimFeed) Set(pair string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = make(map[string]float64)
	}
	f.prices[pair] = price
}
