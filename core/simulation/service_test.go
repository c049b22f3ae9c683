package simulation_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/tests"
)

func setup(t *testing.T) (*simulation.Service, simulation.Repository, user.User, user.User) {
	db := dummydb.Open()
	users := dummydb.NewUserRepository(db)
	repo := dummydb.NewSimulationRepository(db)
	bob := testutil.CreateUser(t, users, "Bob", "bob", "bob@example.com", "", []string{user.RoleLearner}, true)
	ada := testutil.CreateUser(t, users, "Ada", "ada", "ada@example.com", "", []string{user.RoleAdmin}, true)
	testutil.CreateCase(t, repo, "missed-target", "")
	return simulation.NewService(repo, testutil.NewValidator()), repo, bob, ada
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "want a validation error, got %v", err)
	require.NotEmpty(t, verr.Fields)
	return verr.Fields[0].Field
}

func TestScore(t *testing.T) {
	c := simulation.Case{Metrics: []simulation.Metric{{Key: "a", Initial: 10}, {Key: "b", Initial: 0}}}
	tests := []struct {
		name    string
		metrics map[string]int
		want    int
	}{
		{name: "unchanged", metrics: map[string]int{"a": 10, "b": 0}, want: 50},
		{name: "improved", metrics: map[string]int{"a": 20, "b": 5}, want: 65},
		{name: "clamped high", metrics: map[string]int{"a": 100, "b": 100}, want: 100},
		{name: "clamped low", metrics: map[string]int{"a": -100, "b": 0}, want: 0},
		{name: "missing metric", metrics: map[string]int{"a": 10}, want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, simulation.Score(c, tt.metrics))
		})
	}
}

func TestStartAttempt(t *testing.T) {
	svc, repo, bob, _ := setup(t)
	ctx := context.Background()

	v, created, err := svc.StartAttempt(ctx, bob, "Missed-Target")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, map[string]int{"morale": 50, "budget": 100}, v.Metrics)
	require.NotNil(t, v.NextDecision)
	assert.Equal(t, "first-move", v.NextDecision.Key)

	again, created, err := svc.StartAttempt(ctx, bob, "missed-target")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v.ID, again.ID)

	c, err := repo.GetCaseBySlug(ctx, "missed-target")
	require.NoError(t, err)
	c.IsPublished = false
	_, err = repo.SaveCase(ctx, c)
	require.NoError(t, err)
	_, _, err = svc.StartAttempt(ctx, bob, "missed-target")
	assert.Equal(t, simulation.ErrCaseNotFound, err)
}

func TestDecide(t *testing.T) {
	svc, _, bob, ada := setup(t)
	ctx := context.Background()

	v, _, err := svc.StartAttempt(ctx, bob, "missed-target")
	require.NoError(t, err)

	_, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "first-move"})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs), "option_key is required")

	_, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "nope", OptionKey: "listen"})
	assert.Equal(t, "decision_key", fieldOf(t, err))

	_, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "resources", OptionKey: "hire"})
	assert.Equal(t, "decision_key", fieldOf(t, err))
	assert.Contains(t, err.Error(), `expecting "first-move"`)

	_, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "first-move", OptionKey: "shout"})
	assert.Equal(t, "option_key", fieldOf(t, err))

	_, err = svc.Decide(ctx, ada, v.ID, simulation.NewDecision{DecisionKey: "first-move", OptionKey: "listen"})
	assert.True(t, core.IsPermissionDenied(err))

	v, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "first-move", OptionKey: "listen", Rationale: " Hear them out "})
	require.NoError(t, err)
	assert.Equal(t, simulation.StatusInProgress, v.Status)
	assert.Equal(t, 60, v.Metrics["morale"])
	require.Len(t, v.Choices, 1)
	assert.Equal(t, "Hear them out", v.Choices[0].Rationale)

	v, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "resources", OptionKey: "hire"})
	require.NoError(t, err)
	assert.Equal(t, simulation.StatusCompleted, v.Status)
	assert.NotNil(t, v.CompletedAt)
	assert.Nil(t, v.NextDecision)
	// morale +15, budget -30
	assert.Equal(t, 35, v.Score)

	_, err = svc.Decide(ctx, bob, v.ID, simulation.NewDecision{DecisionKey: "resources", OptionKey: "wait"})
	assert.Equal(t, simulation.ErrAttemptComplete, err)
}

func TestGetAttempt(t *testing.T) {
	svc, repo, bob, ada := setup(t)
	ctx := context.Background()
	users := dummydb.NewUserRepository(dummydb.Open())
	eve := testutil.CreateUser(t, users, "Eve", "eve", "eve@example.com", "", []string{user.RoleLearner}, true)

	v, _, err := svc.StartAttempt(ctx, bob, "missed-target")
	require.NoError(t, err)

	tests := []struct {
		name    string
		usr     user.User
		wantErr error
	}{
		{name: "owner", usr: bob},
		{name: "admin", usr: ada},
		{name: "someone else", usr: eve, wantErr: simulation.ErrAttemptNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetAttempt(ctx, tt.usr, v.ID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, v.ID, got.ID)
		})
	}

	attempts, err := repo.QueryAttempts(ctx, simulation.AttemptFilter{UserID: bob.ID})
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}
