package tests

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/tests"
)

func Test_simulationApi_play(t *testing.T) {
	e := setup(t)

	learner := testutil.CreateUser(t, e.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleLearner}, true)
	other := testutil.CreateUser(t, e.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleLearner}, true)
	testutil.CreateCase(t, e.cases, "missed-target", "")
	token := e.getToken(t, learner)

	var attempt simulation.AttemptView
	t.Run("start", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/cases/missed-target/attempts", token, nil, &attempt)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, simulation.StatusInProgress, attempt.Status)
		assert.Equal(t, map[string]int{"morale": 50, "budget": 100}, attempt.Metrics)
		require.NotNil(t, attempt.NextDecision)
		assert.Equal(t, "first-move", attempt.NextDecision.Key)
	})

	t.Run("resume the attempt in progress", func(t *testing.T) {
		var again simulation.AttemptView
		rec := e.do(t, http.MethodPost, "/v1/cases/missed-target/attempts", token, nil, &again)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, attempt.ID, again.ID)
	})

	t.Run("unknown case", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "case not found"})}
		checkCodeAndData(t, tt, e.do(t, http.MethodPost, "/v1/cases/lol/attempts", token, nil, nil))
	})

	path := "/v1/attempts/" + attempt.ID
	tests := []httpTest{
		{
			name: "someone else's attempt", method: http.MethodGet, path: path, token: e.getToken(t, other),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "attempt not found"}),
		},
		{
			name: "debrief before completion", method: http.MethodPost, path: path + "/debrief", token: token,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "attempt must be completed before it can be debriefed"}),
		},
		{
			name: "decision out of order", method: http.MethodPost, path: path + "/decisions", token: token,
			body:     marchallObj(t, simulation.NewDecision{DecisionKey: "resources", OptionKey: "hire"}),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"decision_key": "decisions must be taken in order, expecting \"first-move\""}`),
		},
		{
			name: "unknown option", method: http.MethodPost, path: path + "/decisions", token: token,
			body:     marchallObj(t, simulation.NewDecision{DecisionKey: "first-move", OptionKey: "lol"}),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"option_key": "unknown option"}`),
		},
		{
			name: "required fields", method: http.MethodPost, path: path + "/decisions", token: token,
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"decision_key": "this field is required", "option_key": "this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("decide until completed", func(t *testing.T) {
		var view simulation.AttemptView
		rec := e.do(t, http.MethodPost, path+"/decisions", token,
			marchallObj(t, simulation.NewDecision{DecisionKey: "first-move", OptionKey: "LISTEN", Rationale: "  hear them out "}), &view)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, view.Choices, 1)
		assert.Equal(t, "hear them out", view.Choices[0].Rationale)
		assert.Equal(t, 60, view.Metrics["morale"])
		require.NotNil(t, view.NextDecision)
		assert.Equal(t, "resources", view.NextDecision.Key)

		rec = e.do(t, http.MethodPost, path+"/decisions", token,
			marchallObj(t, simulation.NewDecision{DecisionKey: "resources", OptionKey: "hire"}), &view)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, simulation.StatusCompleted, view.Status)
		assert.NotNil(t, view.CompletedAt)
		assert.Nil(t, view.NextDecision)
		assert.Equal(t, 35, view.Score)

		rec = e.do(t, http.MethodPost, path+"/decisions", token,
			marchallObj(t, simulation.NewDecision{DecisionKey: "resources", OptionKey: "wait"}), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("list attempts", func(t *testing.T) {
		var attempts []simulation.Attempt
		rec := e.do(t, http.MethodGet, "/v1/attempts", token, nil, &attempts)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, attempts, 1)
		assert.Equal(t, attempt.ID, attempts[0].ID)

		rec = e.do(t, http.MethodGet, "/v1/attempts", e.getToken(t, other), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("debrief", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, path+"/debrief", token, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var d debrief.Debrief
		rec = e.do(t, http.MethodPost, path+"/debrief", token, nil, &d)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Good call.", d.Summary)
		assert.Equal(t, []string{"listening"}, d.Strengths)
		assert.Equal(t, 4, d.Rating)
		assert.Equal(t, "test-model", d.Model)
		assert.Equal(t, 1, e.gen.calls)

		// cached
		rec = e.do(t, http.MethodPost, path+"/debrief", token, nil, &d)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, e.gen.calls)

		var got debrief.Debrief
		rec = e.do(t, http.MethodGet, path+"/debrief", token, nil, &got)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, d.ID, got.ID)

		e.gen.text = `{"summary": "Second look.", "strengths": [], "improvements": ["budget"], "rating": 3}`
		rec = e.do(t, http.MethodPost, path+"/debrief?regenerate=true", token, nil, &got)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Second look.", got.Summary)
		assert.Equal(t, 2, e.gen.calls)
	})

	t.Run("debrief upstream failures", func(t *testing.T) {
		e.gen.text = "I cannot answer that."
		tt := httpTest{wantCode: http.StatusBadGateway, wantData: marchallObj(t, httpErr{Error: "debrief generation returned an unreadable answer"})}
		checkCodeAndData(t, tt, e.do(t, http.MethodPost, path+"/debrief?regenerate=true", token, nil, nil))

		e.gen.err = errors.New("connection reset")
		tt = httpTest{wantCode: http.StatusBadGateway, wantData: marchallObj(t, httpErr{Error: "debrief generation failed"})}
		checkCodeAndData(t, tt, e.do(t, http.MethodPost, path+"/debrief?regenerate=true", token, nil, nil))

		// the previous debrief is kept
		var got debrief.Debrief
		rec := e.do(t, http.MethodGet, path+"/debrief", token, nil, &got)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Second look.", got.Summary)
	})
}
