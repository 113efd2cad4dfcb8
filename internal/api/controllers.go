package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fxcore/internal/alert"
	"fxcore/internal/events"
	"fxcore/internal/signal"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	global, pairs := s.Validity.KillSwitches()
	c.JSON(http.StatusOK, gin.H{
		"meta":             s.Meta,
		"activeTrades":     len(s.Engine.ActiveTrades()),
		"dailyRisk":        s.Engine.DailyRisk(),
		"globalKillSwitch": global,
		"pairKillSwitches": pairs,
		"alertChannels":    s.Alerts.AvailableChannels(),
		"busDropped":       s.Bus.Dropped(),
	})
}

func (s *Server) getQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Queue.GetStats())
}

// submitSignal evaluates an incoming signal and, when it scores ENTER,
// hands it to the execution engine.
func (s *Server) submitSignal(c *gin.Context) {
	var in signal.Signal
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid signal payload: " + err.Error(),
		})
		return
	}
	in.Pair = s.Rules.NormalizeSymbol(in.Pair)
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	if s.Bus != nil {
		s.Bus.Publish(events.EventSignalReceived, in)
	}

	in.Validity = s.Validity.Evaluate(in, time.Now().UTC())
	result := s.Engine.ExecuteTrade(c.Request.Context(), in)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"success":  result.Success,
		"reason":   result.Reason,
		"decision": in.Validity.Decision,
		"checks":   in.Validity.Checks,
		"trade":    result.Trade,
	})
}

func (s *Server) getActiveTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trades": s.Engine.ActiveTrades()})
}

func (s *Server) getTradeHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	history := s.Engine.History()
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"trades": history})
}

// closeTrade force-closes a position. If the caller supplies no price the
// engine's price source is quoted.
func (s *Server) closeTrade(c *gin.Context) {
	id := c.Param("id")
	trade, ok := s.Engine.ActiveTrade(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "TRADE_NOT_FOUND",
			"error": "no active trade with id " + id,
		})
		return
	}

	var req struct {
		Price  float64 `json:"price"`
		Reason string  `json:"reason"`
	}
	// Body is optional; ignore binding errors on an empty body.
	_ = c.ShouldBindJSON(&req)

	price := req.Price
	if price <= 0 {
		quoted, err := s.Engine.Quote(c.Request.Context(), trade.Pair)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"code":  "PRICE_UNAVAILABLE",
				"error": "no close price supplied and price source failed: " + err.Error(),
			})
			return
		}
		price = quoted
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual_close"
	}

	closed := s.Engine.CloseTrade(c.Request.Context(), id, price, reason)
	if closed == nil {
		// Lost the race with the management loop; report current state.
		c.JSON(http.StatusConflict, gin.H{
			"code":  "ALREADY_CLOSING",
			"error": "trade is already closing or closed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": closed})
}

func (s *Server) getRisk(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dailyRisk":    s.Engine.DailyRisk(),
		"activeTrades": len(s.Engine.ActiveTrades()),
	})
}

func (s *Server) getKillSwitches(c *gin.Context) {
	global, pairs := s.Validity.KillSwitches()
	c.JSON(http.StatusOK, gin.H{"global": global, "pairs": pairs})
}

func (s *Server) setKillSwitch(c *gin.Context) {
	var req struct {
		Pair    string `json:"pair"` // empty means the global switch
		Enabled bool   `json:"enabled"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid kill switch payload",
		})
		return
	}

	if req.Pair == "" {
		s.Validity.SetGlobalKillSwitch(req.Enabled)
	} else {
		s.Validity.SetPairKillSwitch(s.Rules.NormalizeSymbol(req.Pair), req.Enabled)
	}

	if s.Alerts != nil {
		scope := req.Pair
		if scope == "" {
			scope = "global"
		}
		state := "disengaged"
		if req.Enabled {
			state = "engaged"
		}
		s.Alerts.Publish(alert.Event{
			Timestamp: time.Now().UTC(),
			Topic:     "killswitch",
			Severity:  alert.SeverityWarning,
			Message:   "kill switch " + state + " for " + scope,
		})
	}

	global, pairs := s.Validity.KillSwitches()
	c.JSON(http.StatusOK, gin.H{"global": global, "pairs": pairs})
}

func (s *Server) getDeadLetters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.Queue.DeadLetters()})
}

// testAlert pushes a low-severity event through the alert bus so operators
// can verify channel configuration.
func (s *Server) testAlert(c *gin.Context) {
	var req struct {
		Message  string   `json:"message"`
		Channels []string `json:"channels"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Message == "" {
		req.Message = "test alert from fxcore"
	}

	delivered := s.Alerts.Publish(alert.Event{
		Timestamp: time.Now().UTC(),
		Topic:     "test",
		Severity:  alert.SeverityInfo,
		Message:   req.Message,
		Channels:  req.Channels,
		DedupeKey: "test|" + time.Now().UTC().Format(time.RFC3339Nano),
	})
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
