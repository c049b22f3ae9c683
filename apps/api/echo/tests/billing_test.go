package tests

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/tests"
)

func subscriptionEvent(eventID, eventType, userID, status string, occurredAt, periodEnd time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"event_id": %q,
		"event_type": %q,
		"occurred_at": %q,
		"data": {
			"id": "sub_01",
			"status": %q,
			"customer_id": "ctm_01",
			"items": [{"price": {"id": "pri_monthly"}}],
			"current_billing_period": {"starts_at": %q, "ends_at": %q},
			"custom_data": {"user_id": %q}
		}
	}`, eventID, eventType, occurredAt.Format(time.RFC3339), status,
		periodEnd.AddDate(0, -1, 0).Format(time.RFC3339), periodEnd.Format(time.RFC3339), userID))
}

func (e env) postWebhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Paddle-Signature", signature)
	}
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

func Test_billingApi_webhook(t *testing.T) {
	e := setup(t)

	learner := testutil.CreateUser(t, e.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleLearner}, true)
	testutil.CreateProgram(t, e.programs, "pro", true, 1)
	token := e.getToken(t, learner)

	now := time.Now()
	periodEnd := now.AddDate(0, 1, 0)
	created := subscriptionEvent("evt_01", "subscription.created", learner.ID, billing.StatusActive, now.Add(-time.Minute), periodEnd)
	sign := func(body []byte) string { return billing.Sign(testutil.WebhookSecret, time.Now(), body) }

	invalidSig := marchallObj(t, httpErr{Error: "invalid webhook signature"})
	tests := []struct {
		name      string
		body      []byte
		signature string
		wantCode  int
		wantData  []byte
	}{
		{name: "missing signature", body: created, wantCode: http.StatusUnauthorized, wantData: invalidSig},
		{name: "wrong secret", body: created, signature: billing.Sign("lol", now, created), wantCode: http.StatusUnauthorized, wantData: invalidSig},
		{name: "tampered body", body: created, signature: sign([]byte(`{}`)), wantCode: http.StatusUnauthorized, wantData: invalidSig},
		{name: "replayed", body: created, signature: billing.Sign(testutil.WebhookSecret, now.Add(-time.Hour), created), wantCode: http.StatusUnauthorized, wantData: invalidSig},
		{name: "missing event fields", body: []byte(`{"event_type": "subscription.created"}`), wantCode: http.StatusBadRequest},
		{name: "created", body: created, wantCode: http.StatusOK, wantData: []byte(`{"result": "processed"}`)},
		{name: "duplicate", body: created, wantCode: http.StatusOK, wantData: []byte(`{"result": "duplicate"}`)},
		{
			name:     "stale",
			body:     subscriptionEvent("evt_00", "subscription.updated", learner.ID, billing.StatusPaused, now.Add(-time.Hour), periodEnd),
			wantCode: http.StatusOK, wantData: []byte(`{"result": "stale"}`),
		},
		{
			name:     "not a subscription event",
			body:     []byte(fmt.Sprintf(`{"event_id": "evt_02", "event_type": "transaction.completed", "occurred_at": %q, "data": {}}`, now.Format(time.RFC3339))),
			wantCode: http.StatusOK, wantData: []byte(`{"result": "ignored"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.signature
			if sig == "" && tt.wantCode != http.StatusUnauthorized {
				sig = sign(tt.body)
			}
			rec := e.postWebhook(t, tt.body, sig)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
		})
	}

	t.Run("subscription grants access", func(t *testing.T) {
		var access billing.Access
		rec := e.do(t, http.MethodGet, "/v1/me/subscription", token, nil, &access)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, access.HasAccess)
		require.NotNil(t, access.Subscription)
		assert.Equal(t, billing.StatusActive, access.Subscription.Status)
		assert.Equal(t, "pri_monthly", access.Subscription.PriceID)

		rec = e.do(t, http.MethodPost, "/v1/programs/pro/enroll", token, nil, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("canceled subscription past its period", func(t *testing.T) {
		body := subscriptionEvent("evt_03", "subscription.canceled", learner.ID, billing.StatusCanceled, now, now.Add(-time.Hour))
		rec := e.postWebhook(t, body, sign(body))
		require.Equal(t, http.StatusOK, rec.Code)

		var access billing.Access
		rec = e.do(t, http.MethodGet, "/v1/me/subscription", token, nil, &access)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, access.HasAccess)
	})

	t.Run("no subscription", func(t *testing.T) {
		other := testutil.CreateUser(t, e.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleLearner}, true)
		rec := e.do(t, http.MethodGet, "/v1/me/subscription", e.getToken(t, other), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"has_access": false, "subscription": null}`, rec.Body.String())
	})
}
