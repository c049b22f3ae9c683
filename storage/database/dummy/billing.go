package dummydb

import (
	"context"

	"github.com/trezcool/kiongozi/core/billing"
)

type billingRepository struct {
	db *billingTables
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db.billing}
}

func (repo *billingRepository) GetSubscription(_ context.Context, id string) (billing.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.subscriptions[id]; ok {
		return *s, nil
	}
	return billing.Subscription{}, billing.ErrNotFound
}

func (repo *billingRepository) GetUserSubscription(_ context.Context, userID string) (billing.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var latest *billing.Subscription
	for _, s := range repo.db.subscriptions {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.EventOccurredAt.After(latest.EventOccurredAt) {
			latest = s
		}
	}
	if latest == nil {
		return billing.Subscription{}, billing.ErrNotFound
	}
	return *latest, nil
}

func (repo *billingRepository) HasEvent(_ context.Context, eventID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.events[eventID]
	return ok, nil
}

func (repo *billingRepository) SaveEvent(_ context.Context, e billing.Event, sub *billing.Subscription) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if repo.db.events == nil {
		repo.db.events = make(map[string]billing.Event)
		repo.db.subscriptions = make(map[string]*billing.Subscription)
	}

	if _, ok := repo.db.events[e.EventID]; ok {
		return billing.ErrEventExists
	}
	repo.db.events[e.EventID] = e
	if sub != nil {
		s := *sub
		repo.db.subscriptions[s.ID] = &s
	}
	return nil
}
