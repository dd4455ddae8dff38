package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/ecomify/internal/domain/discount"
)

const (
	discountColumns = `id, code, kind, fixed_amount, percentage, max_uses, uses, min_order_amount,
		max_uses_per_user, valid_from, valid_to, active, auto_apply, created_at`

	getDiscountByIDSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE code = UPPER($1)`

	countUserUsagesSQL = `SELECT count(*) FROM discount_usages WHERE customer_id = $1 AND discount_id = $2`

	recentByCustomerSQL = `SELECT d.id, d.code, d.kind, d.fixed_amount, d.percentage, d.max_uses, d.uses,
		d.min_order_amount, d.max_uses_per_user, d.valid_from, d.valid_to, d.active, d.auto_apply, d.created_at
		FROM discount_usages u JOIN discounts d ON d.id = u.discount_id
		WHERE u.customer_id = $1 AND u.created_at >= $2
		ORDER BY u.created_at`

	createDiscountSQL = `INSERT INTO discounts (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	deactivateDiscountSQL = `UPDATE discounts SET active = FALSE WHERE id = $1`

	incrementUsesSQL = `UPDATE discounts SET uses = uses + 1
		WHERE id = $1 AND active AND uses < max_uses AND now() BETWEEN valid_from AND valid_to`

	redeemableSQL = `SELECT active AND now() BETWEEN valid_from AND valid_to FROM discounts WHERE id = $1`

	insertUsageSQL = `INSERT INTO discount_usages (discount_id, customer_id, order_id)
		SELECT $1::text, $2::text, $3::text
		WHERE (SELECT count(*) FROM discount_usages WHERE discount_id = $1 AND customer_id = $2)
			< (SELECT max_uses_per_user FROM discounts WHERE id = $1)`
)

var (
	_ discount.Repository = (*DiscountRepository)(nil)
	_ discount.Store      = (*DiscountRepository)(nil)
)

// DiscountRepository implements discount.Repository and discount.Store.
type DiscountRepository struct {
	db *DB
}

// NewDiscountRepository returns a DiscountRepository that uses db.
func NewDiscountRepository(db *DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// GetByID returns the discount with the given id.
func (r *DiscountRepository) GetByID(ctx context.Context, id string) (discount.Snapshot, error) {
	return r.getOne(ctx, getDiscountByIDSQL, id)
}

// GetByCode returns the discount with the given code. Codes are stored upper-cased.
func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (discount.Snapshot, error) {
	return r.getOne(ctx, getDiscountByCodeSQL, code)
}

func (r *DiscountRepository) getOne(ctx context.Context, sql, arg string) (discount.Snapshot, error) {
	rows, err := r.db.querier(ctx).Query(ctx, sql, arg)
	if err != nil {
		return discount.Snapshot{}, errors.Wrap(err, "query discount")
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discount.Snapshot{}, discount.ErrNotFound
		}
		return discount.Snapshot{}, errors.Wrap(err, "scan discount")
	}
	return s, nil
}

// UserUsages counts the customer's redemptions of one discount.
func (r *DiscountRepository) UserUsages(ctx context.Context, customerID, discountID string) (int, error) {
	var n int
	if err := r.db.querier(ctx).QueryRow(ctx, countUserUsagesSQL, customerID, discountID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count user usages")
	}
	return n, nil
}

// RecentByCustomer returns one entry per redemption by customerID since the
// given time, oldest first.
func (r *DiscountRepository) RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]discount.Snapshot, error) {
	rows, err := r.db.querier(ctx).Query(ctx, recentByCustomerSQL, customerID, since)
	if err != nil {
		return nil, errors.Wrap(err, "recent discounts")
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// Create stores a new discount.
func (r *DiscountRepository) Create(ctx context.Context, s discount.Snapshot) error {
	var code *string
	if s.Code != "" {
		code = &s.Code
	}
	_, err := r.db.querier(ctx).Exec(ctx, createDiscountSQL,
		s.ID, code, s.Kind.String(), s.FixedAmount, s.Percentage, s.MaxUses, s.Uses, s.MinOrderAmount,
		s.MaxUsesPerUser, s.ValidFrom, s.ValidTo, s.Active, s.AutoApply, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrDuplicateCode
		}
		return errors.Wrapf(err, "create discount %s", s.ID)
	}
	return nil
}

// Deactivate clears the active flag.
func (r *DiscountRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.querier(ctx).Exec(ctx, deactivateDiscountSQL, id)
	if err != nil {
		return errors.Wrapf(err, "deactivate discount %s", id)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// RedeemUsage increments the usage counter under a row lock and records the
// redemption, both in one transaction. Only an active discount inside its
// validity window can be redeemed.
func (r *DiscountRepository) RedeemUsage(ctx context.Context, discountID, customerID, orderID string) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.querier(ctx)
		tag, err := q.Exec(ctx, incrementUsesSQL, discountID)
		if err != nil {
			return errors.Wrapf(err, "increment uses of %s", discountID)
		}
		if tag.RowsAffected() == 0 {
			return r.notRedeemable(ctx, discountID)
		}
		tag, err = q.Exec(ctx, insertUsageSQL, discountID, customerID, orderID)
		if err != nil {
			return errors.Wrapf(err, "record usage of %s", discountID)
		}
		if tag.RowsAffected() == 0 {
			return discount.ErrUsageLimitReached
		}
		return nil
	})
}

// notRedeemable explains why incrementUsesSQL matched no row.
func (r *DiscountRepository) notRedeemable(ctx context.Context, discountID string) error {
	var usable bool
	err := r.db.querier(ctx).QueryRow(ctx, redeemableSQL, discountID).Scan(&usable)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return discount.ErrNotFound
	case err != nil:
		return errors.Wrapf(err, "check discount %s", discountID)
	case !usable:
		return discount.ErrNotValidForUse
	default:
		return discount.ErrUsageLimitReached
	}
}

func scanDiscount(row pgx.CollectableRow) (discount.Snapshot, error) {
	var (
		s    discount.Snapshot
		code *string
		kind string
	)
	err := row.Scan(
		&s.ID, &code, &kind, &s.FixedAmount, &s.Percentage, &s.MaxUses, &s.Uses, &s.MinOrderAmount,
		&s.MaxUsesPerUser, &s.ValidFrom, &s.ValidTo, &s.Active, &s.AutoApply, &s.CreatedAt,
	)
	if err != nil {
		return s, err
	}
	if code != nil {
		s.Code = *code
	}
	s.Kind, err = discount.ParseKind(kind)
	return s, err
}
