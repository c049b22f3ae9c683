package simulation

import (
	"time"

	"github.com/trezcool/kiongozi/core"
)

// Attempt statuses
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// baseScore is the score of an attempt whose metrics did not move.
const baseScore = 50

type (
	Metric struct {
		Key     string `json:"key" yaml:"key" validate:"required,slug"`
		Label   string `json:"label" yaml:"label" validate:"required"`
		Initial int    `json:"initial" yaml:"initial"`
	}

	Option struct {
		Key    string         `json:"key" yaml:"key" validate:"required,slug"`
		Label  string         `json:"label" yaml:"label" validate:"required"`
		Impact map[string]int `json:"impact" yaml:"impact"`
	}

	DecisionPoint struct {
		Key     string   `json:"key" yaml:"key" validate:"required,slug"`
		Prompt  string   `json:"prompt" yaml:"prompt" validate:"required"`
		Options []Option `json:"options" yaml:"options" validate:"required,min=2,dive"`
	}

	Case struct {
		ID          string          `json:"id"`
		Slug        string          `json:"slug"`
		Title       string          `json:"title"`
		Brief       string          `json:"brief"`
		ProgramID   string          `json:"program_id,omitempty"`
		IsPublished bool            `json:"is_published"`
		Metrics     []Metric        `json:"metrics"`
		Decisions   []DecisionPoint `json:"decisions"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	Choice struct {
		DecisionKey string    `json:"decision_key"`
		OptionKey   string    `json:"option_key"`
		Rationale   string    `json:"rationale"`
		ChosenAt    time.Time `json:"chosen_at"`
	}

	Attempt struct {
		ID          string         `json:"id"`
		CaseID      string         `json:"case_id"`
		UserID      string         `json:"user_id"`
		Status      string         `json:"status"`
		Choices     []Choice       `json:"choices"`
		Metrics     map[string]int `json:"metrics"`
		Score       int            `json:"score"`
		StartedAt   time.Time      `json:"started_at"`
		CompletedAt *time.Time     `json:"completed_at"`
	}

	// AttemptView is an Attempt with the case it plays and the next decision to take.
	AttemptView struct {
		Attempt
		Case         Case           `json:"case"`
		NextDecision *DecisionPoint `json:"next_decision"`
	}
)

func (c Case) decision(key string) (int, *DecisionPoint) {
	for i := range c.Decisions {
		if c.Decisions[i].Key == key {
			return i, &c.Decisions[i]
		}
	}
	return -1, nil
}

func (d DecisionPoint) option(key string) *Option {
	for i := range d.Options {
		if d.Options[i].Key == key {
			return &d.Options[i]
		}
	}
	return nil
}

// InitialMetrics returns the metric values an attempt starts with.
func (c Case) InitialMetrics() map[string]int {
	metrics := make(map[string]int, len(c.Metrics))
	for _, m := range c.Metrics {
		metrics[m.Key] = m.Initial
	}
	return metrics
}

// Option returns the option chosen for a decision, nil when unknown.
func (c Case) Option(decisionKey, optionKey string) *Option {
	_, d := c.decision(decisionKey)
	if d == nil {
		return nil
	}
	return d.option(optionKey)
}

func (a Attempt) IsCompleted() bool { return a.Status == StatusCompleted }

// Score sums how far every metric moved from its initial value, around baseScore, within 0..100.
func Score(c Case, metrics map[string]int) int {
	delta := 0
	for _, m := range c.Metrics {
		delta += metrics[m.Key] - m.Initial
	}
	return core.Clamp(baseScore+delta, 0, 100)
}

// NextDecision returns the decision an attempt is waiting for, nil once every decision is taken.
func NextDecision(c Case, a Attempt) *DecisionPoint {
	if len(a.Choices) >= len(c.Decisions) {
		return nil
	}
	d := c.Decisions[len(a.Choices)]
	return &d
}

type CaseFilter struct {
	ProgramID          string
	IncludeUnpublished bool
}

type AttemptFilter struct {
	UserID string
	CaseID string
	Status string
}

// NewDecision is a choice submitted for the next decision of an Attempt.
type NewDecision struct {
	DecisionKey string `json:"decision_key" validate:"required"`
	OptionKey   string `json:"option_key" validate:"required"`
	Rationale   string `json:"rationale" validate:"max=2000"`
}
