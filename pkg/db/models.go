package db

import (
	"context"
	"database/sql"
	"time"
)

// TradeRecord is the durable form of a closed (or open) trade.
type TradeRecord struct {
	ID            string
	Pair          string
	Direction     string
	EntryPrice    float64
	StopLoss      float64
	TakeProfit    float64
	PositionSize  float64
	RiskFraction  float64
	Status        string
	Broker        string
	BrokerOrderID string
	OpenTime      time.Time
	CloseTime     *time.Time
	ClosePrice    *float64
	CloseReason   string
	FinalPnLPips  *float64
	FinalPnLAmt   *float64
	DurationMs    int64
}

// UpsertTrade writes a trade row, replacing any prior state for the same id.
func (d *Database) UpsertTrade(ctx context.Context, t TradeRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, pair, direction, entry_price, stop_loss, take_profit,
			position_size, risk_fraction, status, broker, broker_order_id,
			open_time, close_time, close_price, close_reason,
			final_pnl_pips, final_pnl_amount, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stop_loss = excluded.stop_loss,
			status = excluded.status,
			broker = excluded.broker,
			broker_order_id = excluded.broker_order_id,
			close_time = excluded.close_time,
			close_price = excluded.close_price,
			close_reason = excluded.close_reason,
			final_pnl_pips = excluded.final_pnl_pips,
			final_pnl_amount = excluded.final_pnl_amount,
			duration_ms = excluded.duration_ms
	`,
		t.ID, t.Pair, t.Direction, t.EntryPrice, t.StopLoss, t.TakeProfit,
		t.PositionSize, t.RiskFraction, t.Status, t.Broker, t.BrokerOrderID,
		t.OpenTime, t.CloseTime, t.ClosePrice, t.CloseReason,
		t.FinalPnLPips, t.FinalPnLAmt, t.DurationMs,
	)
	return err
}

// ListTrades returns the most recent trades, newest first.
func (d *Database) ListTrades(ctx context.Context, status string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, pair, direction, entry_price, stop_loss, take_profit,
		       position_size, risk_fraction, status, COALESCE(broker, ''),
		       COALESCE(broker_order_id, ''), open_time, close_time, close_price,
		       COALESCE(close_reason, ''), final_pnl_pips, final_pnl_amount,
		       COALESCE(duration_ms, 0)
		FROM trades
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY open_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var closeTime sql.NullTime
		var closePrice, pips, amt sql.NullFloat64
		if err := rows.Scan(
			&t.ID, &t.Pair, &t.Direction, &t.EntryPrice, &t.StopLoss, &t.TakeProfit,
			&t.PositionSize, &t.RiskFraction, &t.Status, &t.Broker,
			&t.BrokerOrderID, &t.OpenTime, &closeTime, &closePrice,
			&t.CloseReason, &pips, &amt, &t.DurationMs,
		); err != nil {
			return nil, err
		}
		if closeTime.Valid {
			v := closeTime.Time
			t.CloseTime = &v
		}
		if closePrice.Valid {
			v := closePrice.Float64
			t.ClosePrice = &v
		}
		if pips.Valid {
			v := pips.Float64
			t.FinalPnLPips = &v
		}
		if amt.Valid {
			v := amt.Float64
			t.FinalPnLAmt = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertAuditEvent appends an audit row. Payload is already serialized.
func (d *Database) InsertAuditEvent(ctx context.Context, event, payload string) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO audit_events (event, payload) VALUES (?, ?)`, event, payload)
	return err
}

// InsertReconciliationReport persists a reconciliation pass summary.
func (d *Database) InsertReconciliationReport(ctx context.Context, diffCount, syncedCount int, detail string) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO reconciliation_reports (diff_count, synced_count, detail) VALUES (?, ?, ?)`,
		diffCount, syncedCount, detail)
	return err
}
