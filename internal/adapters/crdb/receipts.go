package crdb

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyago/booking-flow/internal/domain"
)

const (
	SerializationFailureCode = "40001"
)

// Repository persists confirmed booking receipts together with their outbox
// records, so a confirmation event never gets lost between the receipt row
// and the broker.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrConflict
		}
		return err
	}

	return tx.Commit(ctx)
}

// SaveConfirmed stores the receipt and an outbox record in one transaction.
// Replays of the same receipt are silently ignored.
func (r *Repository) SaveConfirmed(ctx context.Context, b domain.ConfirmedBooking) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			INSERT INTO receipts (
				receipt_id, customer_id, event_id, event_name, venue, starts_at,
				ticket_type_id, ticket_name, unit_price,
				customer_name, email, phone,
				ticket_qty, total_amount, confirmed_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (receipt_id) DO NOTHING
		`,
			b.ReceiptID, b.Customer.CustomerID, b.Event.EventID, b.Event.Name, b.Event.Venue, b.Event.StartsAt,
			b.Ticket.TicketTypeID, b.Ticket.DisplayName, b.Ticket.UnitPrice,
			b.Customer.FullName, b.Customer.Email, b.Customer.Phone,
			b.Quantity, b.TotalAmount, b.ConfirmedAt,
		)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			// already persisted by an earlier delivery
			return nil
		}

		payload, err := json.Marshal(map[string]any{
			"receipt_id":  b.ReceiptID,
			"customer_id": b.Customer.CustomerID,
			"event_id":    b.Event.EventID,
			"ticket_qty":  b.Quantity,
			"total":       b.TotalAmount,
		})
		if err != nil {
			return err
		}
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   b.ReceiptID,
			EventType:     "booking.confirmed",
			Payload:       payload,
			DedupeKey:     b.ReceiptID,
		})
	})
}

func (r *Repository) GetReceipt(ctx context.Context, receiptID string) (*domain.ConfirmedBooking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT receipt_id, customer_id, event_id, event_name, venue, starts_at,
		       ticket_type_id, ticket_name, unit_price,
		       customer_name, email, phone,
		       ticket_qty, total_amount, confirmed_at
		FROM receipts WHERE receipt_id = $1
	`, receiptID)
	b, err := scanReceipt(row)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.ConfirmedBooking, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT receipt_id, customer_id, event_id, event_name, venue, starts_at,
		       ticket_type_id, ticket_name, unit_price,
		       customer_name, email, phone,
		       ticket_qty, total_amount, confirmed_at
		FROM receipts WHERE customer_id = $1
		ORDER BY confirmed_at DESC LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.ConfirmedBooking
	for rows.Next() {
		b, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*domain.ConfirmedBooking, error) {
	var b domain.ConfirmedBooking
	err := row.Scan(
		&b.ReceiptID, &b.Customer.CustomerID, &b.Event.EventID, &b.Event.Name, &b.Event.Venue, &b.Event.StartsAt,
		&b.Ticket.TicketTypeID, &b.Ticket.DisplayName, &b.Ticket.UnitPrice,
		&b.Customer.FullName, &b.Customer.Email, &b.Customer.Phone,
		&b.Quantity, &b.TotalAmount, &b.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
