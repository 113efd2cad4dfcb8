// Package audit records operational events for later inspection. Writes are
// fire-and-forget: callers never block or branch on the outcome.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"fxcore/pkg/db"
)

// Logger appends audit rows to the database asynchronously.
type Logger struct {
	db *db.Database
}

// NewLogger creates an audit logger. database may be nil, in which case
// events are only written to the process log.
func NewLogger(database *db.Database) *Logger {
	return &Logger{db: database}
}

// Record serializes payload and persists the event in the background.
func (l *Logger) Record(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"marshal_error":true}`)
	}

	if l == nil || l.db == nil {
		log.Printf("audit: %s %s", event, data)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.db.InsertAuditEvent(ctx, event, string(data)); err != nil {
			log.Printf("audit: store %s error: %v", event, err)
		}
	}()
}
