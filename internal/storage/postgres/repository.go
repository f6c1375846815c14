package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// Capture statuses stored in payment_captures.
const (
	CaptureRedirected = "redirected"
	CaptureSucceeded  = "captured"
	CaptureFailed     = "failed"
	CaptureCancelled  = "cancelled"
)

// OrderRecord is a checkout that ended with a placed order.
type OrderRecord struct {
	SessionID   string
	Owner       string
	OrderID     string
	Destination string
	Provider    string
}

// CaptureRecord is one hosted payment outcome.
type CaptureRecord struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
	SessionID     string `json:"session_id"`
	OrderID       string `json:"order_id,omitempty"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// Repository is the checkout journal. It is a thin wrapper around *sql.DB intended for
// dependency injection.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// RecordOrder inserts or upserts the order row of a session.
func (r *Repository) RecordOrder(ctx context.Context, rec OrderRecord) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
        INSERT INTO checkout_orders (session_id, owner, order_id, destination, provider)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (session_id) DO UPDATE SET
            order_id = EXCLUDED.order_id,
            destination = EXCLUDED.destination,
            provider = EXCLUDED.provider,
            updated_at = CURRENT_TIMESTAMP
    `
	if _, err := r.DB.ExecContext(ctx, query, rec.SessionID, rec.Owner, rec.OrderID, rec.Destination, rec.Provider); err != nil {
		return fmt.Errorf("failed to record checkout order: %w", err)
	}
	log.Printf("[DB] Recorded checkout order: session=%s order=%s", rec.SessionID, rec.OrderID)
	return nil
}

// RecordCapture appends a payment outcome.
func (r *Repository) RecordCapture(ctx context.Context, rec CaptureRecord) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
        INSERT INTO payment_captures (provider, transaction_id, session_id, order_id, status, message)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	if _, err := r.DB.ExecContext(ctx, query, rec.Provider, rec.TransactionID, rec.SessionID, rec.OrderID, rec.Status, rec.Message); err != nil {
		return fmt.Errorf("failed to record payment capture: %w", err)
	}
	log.Printf("[DB] Recorded %s capture %s: session=%s tx=%s", rec.Provider, rec.Status, rec.SessionID, rec.TransactionID)
	return nil
}

// CapturesForSession lists payment outcomes of a session, oldest first.
func (r *Repository) CapturesForSession(ctx context.Context, sessionID string) ([]CaptureRecord, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := r.DB.QueryContext(ctx, `
        SELECT provider, transaction_id, session_id, order_id, status, message
        FROM payment_captures
        WHERE session_id = $1
        ORDER BY id
    `, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment captures: %w", err)
	}
	defer rows.Close()

	var out []CaptureRecord
	for rows.Next() {
		var rec CaptureRecord
		if err := rows.Scan(&rec.Provider, &rec.TransactionID, &rec.SessionID, &rec.OrderID, &rec.Status, &rec.Message); err != nil {
			return nil, fmt.Errorf("failed to scan payment capture: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment captures: %w", err)
	}
	return out, nil
}

// OnEvent journals checkout lifecycle events. Failures are logged only.
func (r *Repository) OnEvent(ctx context.Context, evt checkout.Event) {
	var err error
	switch evt.Type {
	case checkout.EventOrderPlaced:
		err = r.RecordOrder(ctx, OrderRecord{
			SessionID:   evt.SessionID,
			Owner:       evt.Owner,
			OrderID:     evt.OrderID,
			Destination: string(evt.Destination),
		})
	case checkout.EventPaymentRedirected:
		err = r.RecordCapture(ctx, captureFromEvent(evt, CaptureRedirected))
	case checkout.EventPaymentCaptured:
		if err = r.RecordCapture(ctx, captureFromEvent(evt, CaptureSucceeded)); err == nil {
			err = r.RecordOrder(ctx, OrderRecord{
				SessionID:   evt.SessionID,
				Owner:       evt.Owner,
				OrderID:     evt.OrderID,
				Destination: string(evt.Destination),
				Provider:    string(evt.Provider),
			})
		}
	case checkout.EventPaymentCaptureFailed:
		err = r.RecordCapture(ctx, captureFromEvent(evt, CaptureFailed))
	case checkout.EventPaymentCancelled:
		err = r.RecordCapture(ctx, captureFromEvent(evt, CaptureCancelled))
	case checkout.EventPaymentPageLoadFailed:
		// nothing reached the provider, so there is no capture to record
	}
	if err != nil {
		log.Printf("[DB] Warning: failed to journal %s for session %s: %v", evt.Type, evt.SessionID, err)
	}
}

func captureFromEvent(evt checkout.Event, status string) CaptureRecord {
	return CaptureRecord{
		Provider:      string(evt.Provider),
		TransactionID: evt.TransactionID,
		SessionID:     evt.SessionID,
		OrderID:       evt.OrderID,
		Status:        status,
		Message:       evt.Message,
	}
}
