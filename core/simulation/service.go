package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/user"
)

var (
	// errors
	ErrCaseNotFound    = core.NewNotFoundError("case not found")
	ErrAttemptNotFound = core.NewNotFoundError("attempt not found")
	ErrAttemptComplete = core.NewConflictError("attempt is already completed")
)

type (
	Repository interface {
		QueryCases(ctx context.Context, filter CaseFilter) ([]Case, error)
		GetCaseByID(ctx context.Context, id string) (Case, error)
		GetCaseBySlug(ctx context.Context, slug string) (Case, error)
		// SaveCase inserts or updates a Case by Slug.
		SaveCase(ctx context.Context, c Case) (Case, error)

		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		// QueryAttempts returns attempts most recently started first.
		QueryAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
		UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// ListCases lists the cases. Unpublished cases are only listed for admins.
func (svc *Service) ListCases(ctx context.Context, usr user.User, filter CaseFilter) ([]Case, error) {
	if !usr.IsAdmin() {
		filter.IncludeUnpublished = false
	}
	cases, err := svc.repo.QueryCases(ctx, filter)
	return cases, errors.Wrap(err, "querying cases")
}

func (svc *Service) GetCase(ctx context.Context, usr user.User, slug string) (Case, error) {
	c, err := svc.repo.GetCaseBySlug(ctx, core.CleanString(slug, true /* lower */))
	if err != nil {
		return Case{}, err
	}
	if !c.IsPublished && !usr.IsAdmin() {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

// StartAttempt starts playing a case. An attempt already in progress is returned instead.
func (svc *Service) StartAttempt(ctx context.Context, usr user.User, slug string) (AttemptView, bool, error) {
	c, err := svc.GetCase(ctx, usr, slug)
	if err != nil {
		return AttemptView{}, false, err
	}

	ongoing, err := svc.repo.QueryAttempts(ctx, AttemptFilter{UserID: usr.ID, CaseID: c.ID, Status: StatusInProgress})
	if err != nil {
		return AttemptView{}, false, errors.Wrap(err, "querying attempts")
	}
	if len(ongoing) > 0 {
		return view(c, ongoing[0]), false, nil
	}

	a, err := svc.repo.CreateAttempt(ctx, Attempt{
		CaseID:    c.ID,
		UserID:    usr.ID,
		Status:    StatusInProgress,
		Choices:   []Choice{},
		Metrics:   c.InitialMetrics(),
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return AttemptView{}, false, errors.Wrap(err, "creating attempt")
	}
	return view(c, a), true, nil
}

func view(c Case, a Attempt) AttemptView {
	return AttemptView{Attempt: a, Case: c, NextDecision: NextDecision(c, a)}
}

// ownAttempt loads an attempt owned by usr, or any attempt for admins.
func (svc *Service) ownAttempt(ctx context.Context, usr user.User, id string) (Attempt, Case, error) {
	a, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, Case{}, err
	}
	if a.UserID != usr.ID && !usr.IsAdmin() {
		return Attempt{}, Case{}, ErrAttemptNotFound
	}
	c, err := svc.repo.GetCaseByID(ctx, a.CaseID)
	if err != nil {
		return Attempt{}, Case{}, errors.Wrap(err, "getting case")
	}
	return a, c, nil
}

func (svc *Service) GetAttempt(ctx context.Context, usr user.User, id string) (AttemptView, error) {
	a, c, err := svc.ownAttempt(ctx, usr, id)
	if err != nil {
		return AttemptView{}, err
	}
	return view(c, a), nil
}

func (svc *Service) ListAttempts(ctx context.Context, usr user.User) ([]Attempt, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, AttemptFilter{UserID: usr.ID})
	return attempts, errors.Wrap(err, "querying attempts")
}

// Decide takes the next decision of an attempt.
// Taking the last decision completes the attempt and scores it.
func (svc *Service) Decide(ctx context.Context, usr user.User, attemptID string, nd NewDecision) (AttemptView, error) {
	nd.DecisionKey = core.CleanString(nd.DecisionKey, true /* lower */)
	nd.OptionKey = core.CleanString(nd.OptionKey, true /* lower */)
	nd.Rationale = core.CleanString(nd.Rationale)
	if err := svc.validate.Struct(nd); err != nil {
		return AttemptView{}, err
	}

	a, c, err := svc.ownAttempt(ctx, usr, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	if a.UserID != usr.ID {
		return AttemptView{}, core.ErrPermissionDenied
	}
	if a.IsCompleted() {
		return AttemptView{}, ErrAttemptComplete
	}

	idx, decision := c.decision(nd.DecisionKey)
	if decision == nil {
		return AttemptView{}, core.NewFieldError("decision_key", "unknown decision")
	}
	if idx != len(a.Choices) {
		next := NextDecision(c, a)
		return AttemptView{}, core.NewFieldError("decision_key", fmt.Sprintf("decisions must be taken in order, expecting %q", next.Key))
	}
	option := decision.option(nd.OptionKey)
	if option == nil {
		return AttemptView{}, core.NewFieldError("option_key", "unknown option")
	}

	now := time.Now().UTC()
	if a.Metrics == nil {
		a.Metrics = c.InitialMetrics()
	}
	for key, impact := range option.Impact {
		a.Metrics[key] += impact
	}
	a.Choices = append(a.Choices, Choice{
		DecisionKey: decision.Key,
		OptionKey:   option.Key,
		Rationale:   nd.Rationale,
		ChosenAt:    now,
	})
	if len(a.Choices) == len(c.Decisions) {
		a.Status = StatusCompleted
		a.CompletedAt = &now
		a.Score = Score(c, a.Metrics)
	}

	if a, err = svc.repo.UpdateAttempt(ctx, a); err != nil {
		return AttemptView{}, errors.Wrap(err, "updating attempt")
	}
	return view(c, a), nil
}

// Attempt returns an attempt and its case, for usr or any user when usr is an admin.
func (svc *Service) Attempt(ctx context.Context, usr user.User, id string) (Attempt, Case, error) {
	return svc.ownAttempt(ctx, usr, id)
}

func (svc *Service) GetCaseBySlug(ctx context.Context, slug string) (Case, error) {
	return svc.repo.GetCaseBySlug(ctx, core.CleanString(slug, true /* lower */))
}

func (svc *Service) SaveCase(ctx context.Context, c Case) (Case, error) {
	return svc.repo.SaveCase(ctx, c)
}
