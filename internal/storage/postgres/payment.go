package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/payment"
)

const (
	createPaymentSQL = `INSERT INTO payments
		(id, order_id, amount, currency, method, transaction_id, processed_at, status,
		 gateway_response, refund_amount, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updatePaymentSQL = `UPDATE payments SET processed_at = $2, status = $3, gateway_response = $4,
		refund_amount = $5 WHERE id = $1 AND status = $6`

	paymentExistsSQL = `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`

	insertHistorySQL = `INSERT INTO payment_history (id, payment_id, status, reference, changed_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`

	getPaymentSQL = `SELECT id, order_id, amount, currency, method, transaction_id, processed_at, status,
		gateway_response, refund_amount, details FROM payments WHERE id = $1`

	listHistorySQL = `SELECT id, status, reference, changed_at FROM payment_history
		WHERE payment_id = $1 ORDER BY changed_at, id`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository. History rows are
// immutable; Save only inserts entries it has not stored yet.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository that uses db.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

type detailsRow struct {
	LastFourDigits string `json:"last_four_digits,omitempty"`
	CardBrand      string `json:"card_brand,omitempty"`
	Email          string `json:"email,omitempty"`
	PayerID        string `json:"payer_id,omitempty"`
}

func encodeDetails(d payment.Details) ([]byte, error) {
	row := payment.MatchDetails(d,
		func(c payment.CreditCardDetails) detailsRow {
			return detailsRow{LastFourDigits: c.LastFourDigits, CardBrand: c.CardBrand}
		},
		func(p payment.PayPalDetails) detailsRow {
			return detailsRow{Email: p.Email, PayerID: p.PayerID}
		},
	)
	return json.Marshal(row)
}

func decodeDetails(m payment.Method, data []byte) (payment.Details, error) {
	var row detailsRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, errors.Wrap(err, "unmarshal details")
	}
	switch m {
	case payment.MethodCreditCard:
		return payment.CreditCardDetails{LastFourDigits: row.LastFourDigits, CardBrand: row.CardBrand}, nil
	case payment.MethodPayPal:
		return payment.PayPalDetails{Email: row.Email, PayerID: row.PayerID}, nil
	default:
		return nil, errors.Errorf("unknown method %s", m)
	}
}

func nullTime(s payment.Snapshot) pgtype.Timestamptz {
	if s.ProcessedAt.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: s.ProcessedAt, Valid: true}
}

// Create stores a new payment with its initial history.
func (r *PaymentRepository) Create(ctx context.Context, s payment.Snapshot) error {
	details, err := encodeDetails(s.Details)
	if err != nil {
		return errors.Wrap(err, "encode details")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.querier(ctx).Exec(ctx, createPaymentSQL,
			s.ID, s.OrderID, s.Amount.Amount(), string(s.Amount.Currency()), s.Method.String(),
			s.TransactionID, nullTime(s), s.Status.String(), s.GatewayResponse, s.RefundAmount, details,
		)
		if err != nil {
			return errors.Wrapf(err, "create payment %s", s.ID)
		}
		return r.insertHistory(ctx, s)
	})
}

// Save updates the mutable columns and appends new history entries if the
// stored status is still prev.
func (r *PaymentRepository) Save(ctx context.Context, s payment.Snapshot, prev payment.Status) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.querier(ctx)
		tag, err := q.Exec(ctx, updatePaymentSQL,
			s.ID, nullTime(s), s.Status.String(), s.GatewayResponse, s.RefundAmount, prev.String(),
		)
		if err != nil {
			return errors.Wrapf(err, "update payment %s", s.ID)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := q.QueryRow(ctx, paymentExistsSQL, s.ID).Scan(&exists); err != nil {
				return errors.Wrapf(err, "check payment %s", s.ID)
			}
			if !exists {
				return payment.ErrNotFound
			}
			return errors.Wrapf(payment.ErrIllegalTransition, "payment %s is no longer %s", s.ID, prev)
		}
		return r.insertHistory(ctx, s)
	})
}

func (r *PaymentRepository) insertHistory(ctx context.Context, s payment.Snapshot) error {
	batch := &pgx.Batch{}
	for _, h := range s.History {
		batch.Queue(insertHistorySQL, h.ID, s.ID, h.Status.String(), h.Reference, h.Timestamp)
	}
	if err := r.db.querier(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "insert history of %s", s.ID)
	}
	return nil
}

// Get loads a payment and its full history.
func (r *PaymentRepository) Get(ctx context.Context, id string) (payment.Snapshot, error) {
	q := r.db.querier(ctx)

	var (
		s           payment.Snapshot
		amount      decimal.Decimal
		currency    string
		method      string
		processedAt pgtype.Timestamptz
		status      string
		details     []byte
	)
	err := q.QueryRow(ctx, getPaymentSQL, id).Scan(
		&s.ID, &s.OrderID, &amount, &currency, &method, &s.TransactionID, &processedAt, &status,
		&s.GatewayResponse, &s.RefundAmount, &details,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.Snapshot{}, payment.ErrNotFound
		}
		return payment.Snapshot{}, errors.Wrapf(err, "get payment %s", id)
	}

	if s.Amount, err = money.New(amount, money.Currency(currency)); err != nil {
		return payment.Snapshot{}, errors.Wrapf(err, "payment %s amount", id)
	}
	if s.Method, err = payment.ParseMethod(method); err != nil {
		return payment.Snapshot{}, errors.Wrapf(err, "payment %s", id)
	}
	if s.Status, err = payment.ParseStatus(status); err != nil {
		return payment.Snapshot{}, errors.Wrapf(err, "payment %s", id)
	}
	if s.Details, err = decodeDetails(s.Method, details); err != nil {
		return payment.Snapshot{}, errors.Wrapf(err, "payment %s", id)
	}
	if processedAt.Valid {
		s.ProcessedAt = processedAt.Time
	}

	rows, err := q.Query(ctx, listHistorySQL, id)
	if err != nil {
		return payment.Snapshot{}, errors.Wrapf(err, "list history of %s", id)
	}
	s.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.StatusChange, error) {
		var (
			c  payment.StatusChange
			st string
		)
		if err := row.Scan(&c.ID, &st, &c.Reference, &c.Timestamp); err != nil {
			return c, err
		}
		c.Status, err = payment.ParseStatus(st)
		return c, err
	})
	if err != nil {
		return payment.Snapshot{}, errors.Wrapf(err, "scan history of %s", id)
	}
	return s, nil
}
