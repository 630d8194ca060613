package billing

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

// LedgerExtension is one span extension owed for a billed invoice line.
type LedgerExtension struct {
	MemberID   int
	AccessType span.AccessType
	Days       int
	Start      time.Time
	Reason     string
}

// EventRepository records webhook deliveries for deduplication. An event is
// only considered handled once processed_at is set, so a delivery that failed
// mid-processing is retried when the sender redelivers it.
type EventRepository interface {
	// Record inserts or revisits the event row and reports whether it was
	// already successfully processed.
	Record(ctx context.Context, event *Event) (alreadyProcessed bool, err error)
	// ApplyExtensions writes every ledger extension for an event and marks
	// the event processed in a single transaction. A failure on any line
	// rolls the whole batch back, so redelivery starts from nothing and no
	// line is ever applied twice.
	ApplyExtensions(ctx context.Context, provider, eventID string, extensions []LedgerExtension) ([]time.Time, error)
	MarkProcessed(ctx context.Context, provider, eventID string) error
	MarkFailed(ctx context.Context, provider, eventID string, processingError string) error
}

type eventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Record(ctx context.Context, event *Event) (bool, error) {
	var processed bool
	err := r.db.GetContext(ctx, &processed, `
		INSERT INTO billing_events (provider, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_id)
		DO UPDATE SET event_type = EXCLUDED.event_type
		RETURNING processed_at IS NOT NULL
	`, event.Provider, event.ID, event.Type, string(event.Raw))
	return processed, err
}

func (r *eventRepository) ApplyExtensions(ctx context.Context, provider, eventID string, extensions []LedgerExtension) ([]time.Time, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ends := make([]time.Time, 0, len(extensions))
	for _, ext := range extensions {
		end, err := span.ExtendOrCreateTx(ctx, tx, ext.MemberID, ext.AccessType, ext.Days, ext.Start, ext.Reason)
		if err != nil {
			return nil, err
		}
		ends = append(ends, end)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE billing_events
		SET processed_at = NOW(), processing_error = NULL
		WHERE provider = $1
		  AND event_id = $2
	`, provider, eventID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ends, nil
}

func (r *eventRepository) MarkProcessed(ctx context.Context, provider, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE billing_events
		SET processed_at = NOW(), processing_error = NULL
		WHERE provider = $1
		  AND event_id = $2
	`, provider, eventID)
	return err
}

func (r *eventRepository) MarkFailed(ctx context.Context, provider, eventID string, processingError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE billing_events
		SET processing_error = $3
		WHERE provider = $1
		  AND event_id = $2
	`, provider, eventID, processingError)
	return err
}
