package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"fxcore/internal/alert"
	"fxcore/internal/events"
	"fxcore/internal/execution"
	"fxcore/internal/jobqueue"
	"fxcore/internal/market"
	"fxcore/internal/signal"
	"fxcore/pkg/db"
)

// Server wires HTTP endpoints around the execution core.
type Server struct {
	Router   *gin.Engine
	Bus      *events.Bus
	DB       *db.Database
	Engine   *execution.Engine
	Validity *signal.ValidityEngine
	Rules    *market.Rules
	Queue    *jobqueue.Queue
	Alerts   *alert.Bus

	JWTSecret        string
	OperatorUser     string
	OperatorPassword string
	RateLimitRPS     float64
	RateLimitBurst   int
	Meta             SystemMeta
}

// SystemMeta describes runtime status exposed to the dashboard.
type SystemMeta struct {
	PaperBroker bool     `json:"paper_broker"`
	Broker      string   `json:"broker"`
	Pairs       []string `json:"pairs"`
	Version     string   `json:"version"`
}

// NewServer builds the router with the standard middleware stack.
func NewServer(s *Server) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(s.RateLimitRPS, s.RateLimitBurst))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s.Router = r
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/queue/stats", s.getQueueStats)
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/signals", s.submitSignal)
			protected.GET("/trades/active", s.getActiveTrades)
			protected.GET("/trades/history", s.getTradeHistory)
			protected.POST("/trades/:id/close", s.closeTrade)
			protected.GET("/risk", s.getRisk)
			protected.GET("/killswitch", s.getKillSwitches)
			protected.POST("/killswitch", s.setKillSwitch)
			protected.GET("/queue/deadletter", s.getDeadLetters)
			protected.POST("/alerts/test", s.testAlert)
		}
	}
}
