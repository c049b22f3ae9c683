package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kiongozi/core/billing"
)

var subscriptionColumns = []string{
	"id", "user_id", "customer_id", "price_id", "status", "current_period_end", "canceled_at", "event_occurred_at",
	"updated_at",
}

type subscriptionRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	CustomerID       string    `db:"customer_id"`
	PriceID          string    `db:"price_id"`
	Status           string    `db:"status"`
	CurrentPeriodEnd null.Time `db:"current_period_end"`
	CanceledAt       null.Time `db:"canceled_at"`
	EventOccurredAt  time.Time `db:"event_occurred_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r subscriptionRow) subscription() billing.Subscription {
	return billing.Subscription{
		ID: r.ID, UserID: r.UserID, CustomerID: r.CustomerID, PriceID: r.PriceID, Status: r.Status,
		CurrentPeriodEnd: utcPtr(r.CurrentPeriodEnd), CanceledAt: utcPtr(r.CanceledAt),
		EventOccurredAt: r.EventOccurredAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *sqlx.DB) billing.Repository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) GetSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	var row subscriptionRow
	if err := repo.db.GetContext(ctx, &row, selectQuery("subscription", subscriptionColumns)+" WHERE id = $1", id); err != nil {
		return billing.Subscription{}, trapNoRows(err, billing.ErrNotFound, "getting subscription")
	}
	return row.subscription(), nil
}

func (repo *billingRepository) GetUserSubscription(ctx context.Context, userID string) (billing.Subscription, error) {
	if !isUUID(userID) {
		return billing.Subscription{}, billing.ErrNotFound
	}
	var row subscriptionRow
	q := selectQuery("subscription", subscriptionColumns) + " WHERE user_id = $1 ORDER BY event_occurred_at DESC LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, q, userID); err != nil {
		return billing.Subscription{}, trapNoRows(err, billing.ErrNotFound, "getting user subscription")
	}
	return row.subscription(), nil
}

func (repo *billingRepository) HasEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM billing_event WHERE event_id = $1)", eventID); err != nil {
		return false, errors.Wrap(err, "checking event")
	}
	return exists, nil
}

func (repo *billingRepository) SaveEvent(ctx context.Context, e billing.Event, sub *billing.Subscription) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO billing_event (event_id, event_type, occurred_at, processed_at) VALUES ($1, $2, $3, $4)",
			e.EventID, e.EventType, e.OccurredAt.UTC(), time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err, "") {
				return billing.ErrEventExists
			}
			return errors.Wrap(err, "inserting event")
		}
		if sub == nil {
			return nil
		}
		_, err = tx.ExecContext(ctx, upsertQuery("subscription", subscriptionColumns, []string{"id"}),
			sub.ID, sub.UserID, sub.CustomerID, sub.PriceID, sub.Status, null.TimeFromPtr(sub.CurrentPeriodEnd),
			null.TimeFromPtr(sub.CanceledAt), sub.EventOccurredAt.UTC(), sub.UpdatedAt.UTC())
		return errors.Wrap(err, "saving subscription")
	})
}
