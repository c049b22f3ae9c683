package tests

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/tests"
)

func Test_rateLimits(t *testing.T) {
	e := setup(t, withRateLimits(2))

	learner := testutil.CreateUser(t, e.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleLearner}, true)
	body := []byte(`{"username": "hero", "password": "lol"}`)

	t.Run("login is limited per client", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := e.do(t, http.MethodPost, "/v1/users/login", "", body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
			assert.Equal(t, strconv.Itoa(1-i), rec.Header().Get("X-RateLimit-Remaining"))
		}

		tt := httpTest{wantCode: http.StatusTooManyRequests, wantData: marchallObj(t, httpErr{Error: "too many requests"})}
		rec := e.do(t, http.MethodPost, "/v1/users/login", "", body, nil)
		checkCodeAndData(t, tt, rec)
		retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, retry, 1)
	})

	t.Run("rules are independent", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/users/password-reset", "", []byte(`{"email": "hero@test.cd"}`), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unlimited routes", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			rec := e.do(t, http.MethodGet, "/v1/programs", e.getToken(t, learner), nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})
}
