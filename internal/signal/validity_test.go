package signal

import (
	"testing"
	"time"

	"fxcore/internal/market"
)

var testNow = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC) // Wednesday midday

func floatPtr(v float64) *float64 { return &v }

func cleanSignal() Signal {
	return Signal{
		Pair:       "EURUSD",
		Timestamp:  testNow,
		Direction:  Buy,
		Strength:   70,
		Confidence: 80,
		FinalScore: 75,
		Components: Components{
			Technical: floatPtr(72),
			Economic:  floatPtr(65),
			News:      floatPtr(60),
		},
		Entry: Entry{
			Price:      1.1000,
			StopLoss:   1.0950,
			TakeProfit: 1.1100,
		},
		RiskManagement: RiskManagement{
			PositionSize: 10000,
			RiskFraction: 0.01,
		},
	}
}

func testEngine() *ValidityEngine {
	rules := market.NewRules(market.Metadata{
		Allowlist:       []string{"EURUSD", "GBPUSD", "USDJPY", "BTCUSD"},
		EnforceSessions: true,
		BlockRollover:   true,
	})
	return NewValidityEngine(DefaultValidityConfig(), rules)
}

func TestEvaluateCleanSignalEnters(t *testing.T) {
	e := testEngine()

	v := e.Evaluate(cleanSignal(), testNow)
	if !v.IsValid {
		t.Fatalf("expected valid, got reason %q", v.Reason)
	}
	if v.Decision.State != StateEnter {
		t.Errorf("state = %s, want %s", v.Decision.State, StateEnter)
	}
	if len(v.Decision.Blockers) != 0 || len(v.Decision.Missing) != 0 {
		t.Errorf("unexpected blockers %v or missing %v", v.Decision.Blockers, v.Decision.Missing)
	}
}

func TestEvaluateHardFailuresBlock(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name        string
		mutate      func(*Signal)
		failedCheck string
	}{
		{"neutral direction", func(s *Signal) { s.Direction = Neutral }, "direction"},
		{"zero entry price", func(s *Signal) { s.Entry.Price = 0 }, "entry_price"},
		{"stop above buy entry", func(s *Signal) { s.Entry.StopLoss = 1.1050 }, "stops"},
		{"target below buy entry", func(s *Signal) { s.Entry.TakeProfit = 1.0990 }, "stops"},
		{"risk over cap", func(s *Signal) { s.RiskManagement.RiskFraction = 0.10 }, "risk_fraction"},
		{"symbol not admissible", func(s *Signal) { s.Pair = "AUDNZD" }, "market_rules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := cleanSignal()
			tt.mutate(&sig)
			v := e.Evaluate(sig, testNow)
			if v.IsValid {
				t.Fatal("expected invalid signal")
			}
			if v.Decision.State != StateBlocked {
				t.Errorf("state = %s, want %s", v.Decision.State, StateBlocked)
			}
			if v.Checks[tt.failedCheck] {
				t.Errorf("check %q should have failed", tt.failedCheck)
			}
			if v.Reason == "" {
				t.Error("blocked signal must carry a reason")
			}
		})
	}
}

func TestEvaluateMissingComponentsMonitor(t *testing.T) {
	e := testEngine()

	sig := cleanSignal()
	sig.Components.News = nil
	v := e.Evaluate(sig, testNow)

	if v.IsValid {
		t.Fatal("signal with missing inputs must not be valid")
	}
	if v.Decision.State != StateMonitor {
		t.Errorf("state = %s, want %s", v.Decision.State, StateMonitor)
	}
	if len(v.Decision.Missing) != 1 || v.Decision.Missing[0] != "news" {
		t.Errorf("missing = %v, want [news]", v.Decision.Missing)
	}
	if len(v.Decision.Blockers) != 0 {
		t.Errorf("missing inputs must not produce blockers, got %v", v.Decision.Blockers)
	}
}

func TestEvaluateLowScoreMonitor(t *testing.T) {
	e := testEngine()

	sig := cleanSignal()
	sig.Confidence = 40
	v := e.Evaluate(sig, testNow)

	if v.Decision.State != StateMonitor {
		t.Errorf("state = %s, want %s", v.Decision.State, StateMonitor)
	}

	sig = cleanSignal()
	sig.Strength = 10
	v = e.Evaluate(sig, testNow)
	if v.Decision.State != StateMonitor {
		t.Errorf("state = %s, want %s", v.Decision.State, StateMonitor)
	}
}

func TestKillSwitchesBlock(t *testing.T) {
	e := testEngine()

	e.SetGlobalKillSwitch(true)
	v := e.Evaluate(cleanSignal(), testNow)
	if v.Decision.State != StateBlocked {
		t.Errorf("global kill: state = %s, want %s", v.Decision.State, StateBlocked)
	}
	e.SetGlobalKillSwitch(false)

	e.SetPairKillSwitch("EURUSD", true)
	v = e.Evaluate(cleanSignal(), testNow)
	if v.Decision.State != StateBlocked {
		t.Errorf("pair kill: state = %s, want %s", v.Decision.State, StateBlocked)
	}

	sig := cleanSignal()
	sig.Pair = "GBPUSD"
	sig.Entry = Entry{Price: 1.2700, StopLoss: 1.2650, TakeProfit: 1.2800}
	v = e.Evaluate(sig, testNow)
	if v.Decision.State != StateEnter {
		t.Errorf("other pair should still enter, got %s (%s)", v.Decision.State, v.Reason)
	}

	e.SetPairKillSwitch("EURUSD", false)
	v = e.Evaluate(cleanSignal(), testNow)
	if v.Decision.State != StateEnter {
		t.Errorf("cleared kill switch should enter, got %s (%s)", v.Decision.State, v.Reason)
	}
}

func TestSellStopsValidation(t *testing.T) {
	sig := cleanSignal()
	sig.Direction = Sell
	sig.Entry = Entry{Price: 1.1000, StopLoss: 1.1050, TakeProfit: 1.0900}
	if !stopsOnCorrectSide(sig) {
		t.Error("sell with stop above and target below entry should pass")
	}

	sig.Entry.StopLoss = 1.0990
	if stopsOnCorrectSide(sig) {
		t.Error("sell with stop below entry should fail")
	}
}
