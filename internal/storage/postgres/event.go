package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/printshop/internal/domain/order"
)

const insertEventSQL = `INSERT INTO stripe_events (id, type) VALUES ($1, $2)
	ON CONFLICT (id) DO NOTHING`

const eventProcessedSQL = `SELECT processed_at IS NOT NULL FROM stripe_events WHERE id = $1`

const finishEventSQL = `UPDATE stripe_events SET processed_at = now() WHERE id = $1`

var _ order.EventLog = (*EventLog)(nil)

// EventLog records payment provider events in stripe_events so that
// redelivered notifications are applied once.
type EventLog struct {
	pool *pgxpool.Pool
}

// NewEventLog returns an EventLog that uses the given pool.
func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{pool: pool}
}

// Begin records the event. It returns false when the event was already
// processed; an event recorded but never finished is handed out again.
func (l *EventLog) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := l.pool.Exec(ctx, insertEventSQL, eventID, eventType)
	if err != nil {
		return false, errors.Wrapf(err, "record event %q", eventID)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var processed bool
	if err := l.pool.QueryRow(ctx, eventProcessedSQL, eventID).Scan(&processed); err != nil {
		return false, errors.Wrapf(err, "check event %q", eventID)
	}
	return !processed, nil
}

// Finish marks the event processed.
func (l *EventLog) Finish(ctx context.Context, eventID string) error {
	if _, err := l.pool.Exec(ctx, finishEventSQL, eventID); err != nil {
		return errors.Wrapf(err, "finish event %q", eventID)
	}
	return nil
}
