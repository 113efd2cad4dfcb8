package broker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPaperPlaceAndClose(t *testing.T) {
	p := NewPaper(PaperConfig{InitialBalance: 10000})

	res := p.PlaceOrder(context.Background(), OrderPayload{
		TradeID:      "t1",
		Symbol:       "EURUSD",
		Direction:    "BUY",
		Price:        1.1000,
		PositionSize: 10000,
	})
	if !res.Success {
		t.Fatalf("placement failed: %s", res.Error)
	}
	if res.OrderID == "" || res.Broker != "paper" {
		t.Errorf("unexpected result %+v", res)
	}

	positions, err := p.Positions(context.Background())
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}

	closeRes := p.ClosePosition(context.Background(), ClosePayload{
		OrderID: res.OrderID,
		Price:   1.1100,
	})
	if !closeRes.Success {
		t.Fatalf("close failed: %s", closeRes.Error)
	}

	// 100 pips on 10k units is +100 cash.
	if bal := p.Balance(); bal < 10099 || bal > 10101 {
		t.Errorf("balance = %.2f, want ~10100", bal)
	}

	positions, _ = p.Positions(context.Background())
	if len(positions) != 0 {
		t.Errorf("positions = %d after close, want 0", len(positions))
	}
}

func TestPaperCloseUnknownOrder(t *testing.T) {
	p := NewPaper(PaperConfig{})
	res := p.ClosePosition(context.Background(), ClosePayload{OrderID: "missing"})
	if res.Success {
		t.Fatal("closing an unknown order must fail")
	}
}

func TestPaperRejectsZeroSize(t *testing.T) {
	p := NewPaper(PaperConfig{})
	res := p.PlaceOrder(context.Background(), OrderPayload{Symbol: "EURUSD", Direction: "BUY", Price: 1.1})
	if res.Success {
		t.Fatal("zero position size must be rejected")
	}
}

func TestPaperConcurrentPlacements(t *testing.T) {
	p := NewPaper(PaperConfig{
		SlippageBps: 5,
		FailRate:    0.2,
		LatencyMin:  time.Millisecond,
		LatencyMax:  2 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.PlaceOrder(context.Background(), OrderPayload{
				Symbol: "EURUSD", Direction: "BUY", Price: 1.1000, PositionSize: 1000,
			})
		}()
	}
	wg.Wait()

	positions, err := p.Positions(context.Background())
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) > 20 {
		t.Errorf("positions = %d, want at most 20", len(positions))
	}
	for _, pos := range positions {
		if pos.Entry < 1.1000 {
			t.Errorf("buy fill below requested price: %f", pos.Entry)
		}
	}
}

func TestPaperModifyPosition(t *testing.T) {
	p := NewPaper(PaperConfig{})
	res := p.PlaceOrder(context.Background(), OrderPayload{
		Symbol: "EURUSD", Direction: "SELL", Price: 1.1000, PositionSize: 5000,
		StopLoss: 1.1050, TakeProfit: 1.0900,
	})
	if !res.Success {
		t.Fatalf("placement failed: %s", res.Error)
	}

	mod := p.ModifyPosition(context.Background(), ModifyPayload{
		OrderID:  res.OrderID,
		StopLoss: 1.1020,
	})
	if !mod.Success {
		t.Fatalf("modify failed: %s", mod.Error)
	}

	positions, _ := p.Positions(context.Background())
	if len(positions) != 1 {
		t.Fatal("expected one position")
	}
}
