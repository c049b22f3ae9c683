// Package debrief generates coaching feedback on completed simulation attempts.
package debrief

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("debrief not found")
	ErrAttemptInProgress = core.NewConflictError("attempt must be completed before it can be debriefed")
	errGeneratorFailure  = "debrief generation failed"
)

type (
	// Generator completes prompts with an external language model.
	Generator interface {
		Generate(ctx context.Context, prompt Prompt) (Completion, error)
	}

	Repository interface {
		GetDebrief(ctx context.Context, attemptID string) (Debrief, error)
		// SaveDebrief inserts or replaces the Debrief of an attempt.
		SaveDebrief(ctx context.Context, d Debrief) (Debrief, error)
	}

	// Attempts loads attempts visible to a user.
	Attempts interface {
		Attempt(ctx context.Context, usr user.User, id string) (simulation.Attempt, simulation.Case, error)
	}

	Service struct {
		repo      Repository
		attempts  Attempts
		generator Generator
		logger    core.Logger
	}
)

func NewService(repo Repository, attempts Attempts, generator Generator, logger core.Logger) *Service {
	return &Service{repo: repo, attempts: attempts, generator: generator, logger: logger}
}

// Get returns the debrief of an attempt visible to usr.
func (svc *Service) Get(ctx context.Context, usr user.User, attemptID string) (Debrief, error) {
	if _, _, err := svc.attempts.Attempt(ctx, usr, attemptID); err != nil {
		return Debrief{}, err
	}
	return svc.repo.GetDebrief(ctx, attemptID)
}

// Generate debriefs a completed attempt. The existing debrief is returned unless regenerate is set.
// The bool result reports whether a new debrief was generated.
func (svc *Service) Generate(ctx context.Context, usr user.User, attemptID string, regenerate bool) (Debrief, bool, error) {
	attempt, c, err := svc.attempts.Attempt(ctx, usr, attemptID)
	if err != nil {
		return Debrief{}, false, err
	}
	if !attempt.IsCompleted() {
		return Debrief{}, false, ErrAttemptInProgress
	}

	existing, err := svc.repo.GetDebrief(ctx, attempt.ID)
	switch {
	case err == nil:
		if !regenerate {
			return existing, false, nil
		}
	case errors.Cause(err) != ErrNotFound:
		return Debrief{}, false, errors.Wrap(err, "getting debrief")
	}

	prompt, err := BuildPrompt(c, attempt)
	if err != nil {
		return Debrief{}, false, errors.Wrap(err, "building prompt")
	}
	completion, err := svc.generator.Generate(ctx, prompt)
	if err != nil {
		return Debrief{}, false, core.NewUpstreamError(err, errGeneratorFailure)
	}
	fb, err := parseFeedback(completion.Text)
	if err != nil {
		svc.logger.Warn("debrief.Generate: "+err.Error(), completion.Model)
		return Debrief{}, false, err
	}

	d := Debrief{
		ID:           existing.ID,
		AttemptID:    attempt.ID,
		UserID:       attempt.UserID,
		Summary:      fb.Summary,
		Strengths:    fb.Strengths,
		Improvements: fb.Improvements,
		Rating:       fb.Rating,
		Model:        completion.Model,
		CreatedAt:    time.Now().UTC(),
	}
	if d, err = svc.repo.SaveDebrief(ctx, d); err != nil {
		return Debrief{}, false, errors.Wrap(err, "saving debrief")
	}
	return d, true, nil
}
