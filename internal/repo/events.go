package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventsRepo keeps an append-only audit trail of every broker message the
// consumer accepted, before any interpretation happens.
type EventsRepo struct{ db *pgxpool.Pool }

func NewEventsRepo(db *pgxpool.Pool) *EventsRepo { return &EventsRepo{db: db} }

func (r *EventsRepo) InsertRaw(ctx context.Context, stationId, action string, ts time.Time, payload []byte) error {
	_, err := r.db.Exec(ctx, `
		insert into broker_events (station_id, action, ts, payload)
		values ($1,$2,$3,$4)
	`, stationId, action, ts, payload)
	return err
}
