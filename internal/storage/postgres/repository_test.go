package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRecordOrderUpserts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO checkout_orders (session_id, owner, order_id, destination, provider)`)).
		WithArgs("sess-1", "user:alice", "1001", "order_confirmation", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordOrder(context.Background(), OrderRecord{
		SessionID:   "sess-1",
		Owner:       "user:alice",
		OrderID:     "1001",
		Destination: "order_confirmation",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEventCapturedWritesCaptureAndOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_captures`)).
		WithArgs("stripe_connect", "cs_test_1", "sess-2", "77", CaptureSucceeded, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO checkout_orders`)).
		WithArgs("sess-2", "user:bob", "77", "order_confirmation", "stripe_connect").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo.OnEvent(context.Background(), checkout.Event{
		Type:          checkout.EventPaymentCaptured,
		SessionID:     "sess-2",
		Owner:         "user:bob",
		OrderID:       "77",
		Destination:   checkout.DestinationOrderConfirmation,
		Provider:      checkout.ProviderStripeConnect,
		TransactionID: "cs_test_1",
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEventFailedCaptureKeepsMessage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_captures`)).
		WithArgs("paypal_smart_button", "5O1", "sess-3", "", CaptureFailed, "Instrument declined").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo.OnEvent(context.Background(), checkout.Event{
		Type:          checkout.EventPaymentCaptureFailed,
		SessionID:     "sess-3",
		Provider:      checkout.ProviderPayPalSmartButton,
		TransactionID: "5O1",
		Message:       "Instrument declined",
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEventSwallowsDatabaseErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_captures`)).
		WillReturnError(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		repo.OnEvent(context.Background(), checkout.Event{Type: checkout.EventPaymentCancelled, SessionID: "sess-4"})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapturesForSession(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"provider", "transaction_id", "session_id", "order_id", "status", "message"}).
		AddRow("stripe_connect", "cs_1", "sess-5", "", CaptureRedirected, "").
		AddRow("stripe_connect", "cs_1", "sess-5", "9", CaptureSucceeded, "")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM payment_captures`)).
		WithArgs("sess-5").
		WillReturnRows(rows)

	got, err := repo.CapturesForSession(context.Background(), "sess-5")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, CaptureSucceeded, got[1].Status)
	assert.Equal(t, "9", got[1].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilDatabase(t *testing.T) {
	repo := NewRepository(nil)
	assert.Error(t, repo.RecordOrder(context.Background(), OrderRecord{}))
	assert.Error(t, repo.RecordCapture(context.Background(), CaptureRecord{}))
}

func TestOnEventPageLoadFailureRecordsNoCapture(t *testing.T) {
	repo, mock := newMockRepo(t)

	repo.OnEvent(context.Background(), checkout.Event{
		Type:      checkout.EventPaymentPageLoadFailed,
		SessionID: "sess-5",
		Provider:  checkout.ProviderStripeConnect,
		Message:   "failed to load payment page: net::ERR_NAME_NOT_RESOLVED",
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
