package billing_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/services/email"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/tests"
)

type fixture struct {
	svc  *billing.Service
	mail *emailsvc.ConsoleServiceMock
	bob  user.User
	ada  user.User
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)

	db := dummydb.Open()
	users := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return fixture{
		svc:  billing.NewService(dummydb.NewBillingRepository(db), user.NewService(users, mailSvc, conf), mailSvc, conf, logger),
		mail: mailSvc,
		bob:  testutil.CreateUser(t, users, "Bob", "bob", "bob@example.com", "", []string{user.RoleLearner}, true),
		ada:  testutil.CreateUser(t, users, "Ada", "ada", "ada@example.com", "", []string{user.RoleAdmin}, true),
	}
}

type event struct {
	id, typ, status, userID string
	occurredAt, periodEnd   time.Time
}

func (e event) body(t *testing.T) []byte {
	data := map[string]interface{}{
		"id":          "sub_1",
		"status":      e.status,
		"customer_id": "ctm_1",
		"items":       []interface{}{map[string]interface{}{"price": map[string]string{"id": "pri_monthly"}}},
		"custom_data": map[string]string{"user_id": e.userID},
	}
	if !e.periodEnd.IsZero() {
		data["current_billing_period"] = map[string]time.Time{"starts_at": e.periodEnd.AddDate(0, -1, 0), "ends_at": e.periodEnd}
	}
	b, err := json.Marshal(map[string]interface{}{
		"event_id":    e.id,
		"event_type":  e.typ,
		"occurred_at": e.occurredAt,
		"data":        data,
	})
	require.NoError(t, err)
	return b
}

func (f fixture) send(t *testing.T, body []byte) (string, error) {
	return f.svc.HandleWebhook(context.Background(), billing.Sign(testutil.WebhookSecret, time.Now(), body), body)
}

func TestHandleWebhook(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC().Truncate(time.Second)
	periodEnd := now.AddDate(0, 1, 0)

	created := event{id: "evt_1", typ: "subscription.created", status: billing.StatusActive, userID: f.bob.ID, occurredAt: now, periodEnd: periodEnd}
	canceled := event{id: "evt_3", typ: "subscription.canceled", status: billing.StatusCanceled, userID: f.bob.ID, occurredAt: now.Add(2 * time.Minute), periodEnd: periodEnd}
	older := event{id: "evt_2", typ: "subscription.updated", status: billing.StatusPastDue, userID: f.bob.ID, occurredAt: now.Add(time.Minute), periodEnd: periodEnd}

	tests := []struct {
		name       string
		body       []byte
		wantResult string
		wantStatus string
		wantEmails int
	}{
		{name: "created", body: created.body(t), wantResult: billing.ResultProcessed, wantStatus: billing.StatusActive, wantEmails: 1},
		{name: "replayed", body: created.body(t), wantResult: billing.ResultDuplicate, wantStatus: billing.StatusActive, wantEmails: 1},
		{name: "canceled", body: canceled.body(t), wantResult: billing.ResultProcessed, wantStatus: billing.StatusCanceled, wantEmails: 2},
		{name: "out of order", body: older.body(t), wantResult: billing.ResultStale, wantStatus: billing.StatusCanceled, wantEmails: 2},
		{
			name:       "other events",
			body:       event{id: "evt_4", typ: "transaction.completed", occurredAt: now}.body(t),
			wantResult: billing.ResultIgnored,
			wantStatus: billing.StatusCanceled,
			wantEmails: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.send(t, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, res)

			sub, err := f.svc.Subscription(context.Background(), f.bob)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, sub.Status)
			assert.Equal(t, "pri_monthly", sub.PriceID)
			assert.Len(t, f.mail.SentMessages(), tt.wantEmails)
		})
	}
}

func TestHandleWebhook_unknownUser(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC().Truncate(time.Second)
	body := event{id: "evt_1", typ: "subscription.created", status: billing.StatusActive, userID: "ghost", occurredAt: now, periodEnd: now.AddDate(0, 1, 0)}.body(t)

	res, err := f.send(t, body)
	require.NoError(t, err)
	assert.Equal(t, billing.ResultIgnored, res)

	// acknowledged once, so the retry is a duplicate
	res, err = f.send(t, body)
	require.NoError(t, err)
	assert.Equal(t, billing.ResultDuplicate, res)

	_, err = f.svc.Subscription(context.Background(), user.User{ID: "ghost"})
	assert.Equal(t, billing.ErrNotFound, errors.Cause(err))
	assert.Empty(t, f.mail.SentMessages())
}

func TestHandleWebhook_invalid(t *testing.T) {
	f := setup(t)
	body := []byte(`{"event_id": "evt_1"}`)

	_, err := f.svc.HandleWebhook(context.Background(), "ts=1;h1=00", body)
	assert.Equal(t, billing.ErrInvalidSignature, errors.Cause(err))

	_, err = f.send(t, body)
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = f.send(t, []byte(`not json`))
	assert.True(t, errors.As(err, &verr))
}

func TestHasAccess(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	periodEnd := now.Add(24 * time.Hour)
	day := 24 * time.Hour
	defer func() { billing.NowFunc = time.Now }()

	tests := []struct {
		name   string
		status string
		at     time.Time
		want   bool
	}{
		{name: "active", status: billing.StatusActive, at: now, want: true},
		{name: "trialing", status: billing.StatusTrialing, at: now, want: true},
		{name: "paused", status: billing.StatusPaused, at: now, want: false},
		{name: "past due within grace", status: billing.StatusPastDue, at: periodEnd.Add(6 * day), want: true},
		{name: "past due after grace", status: billing.StatusPastDue, at: periodEnd.Add(8 * day), want: false},
		{name: "canceled before period end", status: billing.StatusCanceled, at: now, want: true},
		{name: "canceled after period end", status: billing.StatusCanceled, at: periodEnd.Add(time.Hour), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billing.NowFunc = time.Now
			f := setup(t)
			_, err := f.send(t, event{
				id: "evt_1", typ: "subscription.updated", status: tt.status, userID: f.bob.ID, occurredAt: now, periodEnd: periodEnd,
			}.body(t))
			require.NoError(t, err)

			billing.NowFunc = func() time.Time { return tt.at }
			ok, err := f.svc.HasAccess(context.Background(), f.bob)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	t.Run("admins and strangers", func(t *testing.T) {
		billing.NowFunc = time.Now
		f := setup(t)
		ok, err := f.svc.HasAccess(context.Background(), f.ada)
		require.NoError(t, err)
		assert.True(t, ok)

		access, err := f.svc.Access(context.Background(), f.bob)
		require.NoError(t, err)
		assert.False(t, access.HasAccess)
		assert.Nil(t, access.Subscription)
	})
}
