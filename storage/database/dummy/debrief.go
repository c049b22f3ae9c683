package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/kiongozi/core/debrief"
)

type debriefRepository struct {
	db *debriefTable
}

var _ debrief.Repository = (*debriefRepository)(nil) // interface compliance check

func NewDebriefRepository(db *DB) debrief.Repository {
	return &debriefRepository{db: db.debrief}
}

func (repo *debriefRepository) GetDebrief(_ context.Context, attemptID string) (debrief.Debrief, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if d, ok := repo.db.table[attemptID]; ok {
		return *d, nil
	}
	return debrief.Debrief{}, debrief.ErrNotFound
}

func (repo *debriefRepository) SaveDebrief(_ context.Context, d debrief.Debrief) (debrief.Debrief, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if repo.db.table == nil {
		repo.db.table = make(map[string]*debrief.Debrief)
	}

	if existing, ok := repo.db.table[d.AttemptID]; ok {
		d.ID = existing.ID
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	repo.db.table[d.AttemptID] = &d
	return d, nil
}
