package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/kiongozi/core/simulation"
)

type simulationRepository struct {
	db *simulationTables
}

var _ simulation.Repository = (*simulationRepository)(nil) // interface compliance check

func NewSimulationRepository(db *DB) simulation.Repository {
	return &simulationRepository{db: db.simulation}
}

func (t *simulationTables) ensure() {
	if t.cases == nil {
		t.cases = make(map[string]*simulation.Case)
		t.attempts = make(map[string]*simulation.Attempt)
	}
}

// copyAttempt keeps callers from mutating stored attempts through shared maps and slices.
func copyAttempt(a simulation.Attempt) simulation.Attempt {
	metrics := make(map[string]int, len(a.Metrics))
	for k, v := range a.Metrics {
		metrics[k] = v
	}
	a.Metrics = metrics
	a.Choices = append([]simulation.Choice{}, a.Choices...)
	return a
}

func (repo *simulationRepository) QueryCases(_ context.Context, filter simulation.CaseFilter) ([]simulation.Case, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	cases := make([]simulation.Case, 0, len(repo.db.cases))
	for _, c := range repo.db.cases {
		if !c.IsPublished && !filter.IncludeUnpublished {
			continue
		}
		if filter.ProgramID != "" && c.ProgramID != filter.ProgramID {
			continue
		}
		cases = append(cases, *c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Slug < cases[j].Slug })
	return cases, nil
}

func (repo *simulationRepository) GetCaseByID(_ context.Context, id string) (simulation.Case, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.cases[id]; ok {
		return *c, nil
	}
	return simulation.Case{}, simulation.ErrCaseNotFound
}

func (repo *simulationRepository) GetCaseBySlug(_ context.Context, slug string) (simulation.Case, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.cases {
		if c.Slug == slug {
			return *c, nil
		}
	}
	return simulation.Case{}, simulation.ErrCaseNotFound
}

func (repo *simulationRepository) SaveCase(_ context.Context, c simulation.Case) (simulation.Case, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	for _, existing := range repo.db.cases {
		if existing.Slug == c.Slug {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
			break
		}
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	repo.db.cases[c.ID] = &c
	return c, nil
}

func (repo *simulationRepository) CreateAttempt(_ context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	a.ID = uuid.New().String()
	stored := copyAttempt(a)
	repo.db.attempts[a.ID] = &stored
	return copyAttempt(a), nil
}

func (repo *simulationRepository) GetAttempt(_ context.Context, id string) (simulation.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.attempts[id]; ok {
		return copyAttempt(*a), nil
	}
	return simulation.Attempt{}, simulation.ErrAttemptNotFound
}

func (repo *simulationRepository) QueryAttempts(_ context.Context, filter simulation.AttemptFilter) ([]simulation.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]simulation.Attempt, 0)
	for _, a := range repo.db.attempts {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.CaseID != "" && a.CaseID != filter.CaseID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		attempts = append(attempts, copyAttempt(*a))
	}
	sort.SliceStable(attempts, func(i, j int) bool { return attempts[i].StartedAt.After(attempts[j].StartedAt) })
	return attempts, nil
}

func (repo *simulationRepository) UpdateAttempt(_ context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.attempts[a.ID]; !ok {
		return simulation.Attempt{}, simulation.ErrAttemptNotFound
	}
	stored := copyAttempt(a)
	repo.db.attempts[a.ID] = &stored
	return copyAttempt(a), nil
}
