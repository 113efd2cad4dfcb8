package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fxcore/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame wraps every outbound websocket message with its topic.
type wsFrame struct {
	Topic   events.Event `json:"topic"`
	Payload any          `json:"payload"`
}

// websocket streams trade lifecycle events and price ticks to the dashboard.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	topics := []events.Event{
		events.EventPriceTick,
		events.EventTradeOpened,
		events.EventTradeAdjusted,
		events.EventTradeClosed,
		events.EventSignalRejected,
		events.EventAlert,
	}

	merged := make(chan wsFrame, 200)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range topics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()
		go func(topic events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- wsFrame{Topic: topic, Payload: msg}:
				case <-done:
					return
				}
			}
		}(topic, stream)
	}

	// Drain client reads so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for frame := range merged {
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
