// Package billing keeps Paddle subscriptions in sync and answers entitlement checks.
package billing

import (
	"context"
	"encoding/json"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/user"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("subscription not found")
	ErrEventExists  = errors.New("event already processed")
	errMissingEvent = "missing event_id, event_type or occurred_at"
)

type (
	Repository interface {
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		// GetUserSubscription returns the Subscription of a user touched by the latest event.
		GetUserSubscription(ctx context.Context, userID string) (Subscription, error)
		HasEvent(ctx context.Context, eventID string) (bool, error)
		// SaveEvent records a processed event and upserts sub, when set, atomically.
		// It returns ErrEventExists when the event was already recorded.
		SaveEvent(ctx context.Context, e Event, sub *Subscription) error
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		users   Users
		mailSvc core.EmailService
		conf    core.BillingConfig
		logger  core.Logger
	}
)

func NewService(repo Repository, users Users, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{repo: repo, users: users, mailSvc: mailSvc, conf: conf.Billing, logger: logger}
}

func (svc *Service) VerifySignature(header string, body []byte) error {
	return VerifySignature(svc.conf.PaddleWebhookSecret, header, body, svc.conf.SignatureTolerance)
}

// HandleWebhook verifies and applies a Paddle notification.
// Duplicate, stale and unknown events are acknowledged without effect.
func (svc *Service) HandleWebhook(ctx context.Context, header string, body []byte) (string, error) {
	if err := svc.VerifySignature(header, body); err != nil {
		return "", err
	}

	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return "", core.NewValidationError(errors.Wrap(err, "decoding event"))
	}
	if e.EventID == "" || e.EventType == "" || e.OccurredAt.IsZero() {
		return "", core.NewValidationError(errors.New(errMissingEvent))
	}

	seen, err := svc.repo.HasEvent(ctx, e.EventID)
	if err != nil {
		return "", errors.Wrap(err, "checking event")
	}
	if seen {
		return ResultDuplicate, nil
	}

	if !e.IsSubscriptionEvent() {
		return svc.save(ctx, e, nil, ResultIgnored)
	}

	var data subscriptionData
	if err = json.Unmarshal(e.Data, &data); err != nil {
		return "", core.NewValidationError(errors.Wrap(err, "decoding subscription"))
	}
	if data.ID == "" {
		return "", core.NewValidationError(errors.New("missing subscription id"))
	}

	prev, err := svc.repo.GetSubscription(ctx, data.ID)
	isNew := false
	switch {
	case err == nil:
		if e.OccurredAt.Before(prev.EventOccurredAt) {
			return svc.save(ctx, e, nil, ResultStale)
		}
	case errors.Cause(err) == ErrNotFound:
		isNew = true
	default:
		return "", errors.Wrap(err, "getting subscription")
	}

	sub := prev
	sub.ID = data.ID
	if data.CustomData.UserID != "" {
		sub.UserID = data.CustomData.UserID
	}
	if sub.UserID == "" {
		svc.logger.Warn("billing.HandleWebhook: subscription without user", data.ID, e.EventID)
		return svc.save(ctx, e, nil, ResultIgnored)
	}
	if sub.UserID != prev.UserID {
		if _, err := svc.users.GetByID(ctx, sub.UserID); err != nil {
			if !core.IsNotFound(err) {
				return "", errors.Wrap(err, "getting user")
			}
			svc.logger.Warn("billing.HandleWebhook: subscription of an unknown user", data.ID, e.EventID)
			return svc.save(ctx, e, nil, ResultIgnored)
		}
	}
	if data.CustomerID != "" {
		sub.CustomerID = data.CustomerID
	}
	if len(data.Items) > 0 && data.Items[0].Price.ID != "" {
		sub.PriceID = data.Items[0].Price.ID
	}
	if data.Status != "" {
		sub.Status = data.Status
	}
	if data.CurrentBillingPeriod != nil {
		end := data.CurrentBillingPeriod.EndsAt.UTC()
		sub.CurrentPeriodEnd = &end
	}
	sub.CanceledAt = data.CanceledAt
	sub.EventOccurredAt = e.OccurredAt.UTC()
	sub.UpdatedAt = time.Now().UTC()

	res, err := svc.save(ctx, e, &sub, ResultProcessed)
	if err != nil || res != ResultProcessed {
		return res, err
	}

	if isNew || prev.Status != sub.Status {
		svc.notify(ctx, sub)
	}
	return res, nil
}

func (svc *Service) save(ctx context.Context, e Event, sub *Subscription, result string) (string, error) {
	if err := svc.repo.SaveEvent(ctx, e, sub); err != nil {
		if errors.Cause(err) == ErrEventExists {
			return ResultDuplicate, nil
		}
		return "", errors.Wrap(err, "saving event")
	}
	return result, nil
}

func (svc *Service) notify(ctx context.Context, sub Subscription) {
	var subject, tmpl string
	switch sub.Status {
	case StatusActive:
		subject, tmpl = "Your subscription is active", "subscription_activated"
	case StatusCanceled:
		subject, tmpl = "Your subscription was canceled", "subscription_canceled"
	default:
		return
	}

	usr, err := svc.users.GetByID(ctx, sub.UserID)
	if err != nil {
		svc.logger.Warn("billing.notify: "+err.Error(), sub.ID)
		return
	}
	if usr.Email == "" {
		return
	}

	periodEnd := "the end of the current period"
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sub.CurrentPeriodEnd.Format("January 2, 2006")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.DisplayName(), Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]string{
			"Name":      usr.DisplayName(),
			"PeriodEnd": periodEnd,
		},
	})
}

// Subscription returns the current subscription of usr.
func (svc *Service) Subscription(ctx context.Context, usr user.User) (Subscription, error) {
	return svc.repo.GetUserSubscription(ctx, usr.ID)
}

// HasAccess reports whether usr may access premium content.
func (svc *Service) HasAccess(ctx context.Context, usr user.User) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	sub, err := svc.repo.GetUserSubscription(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting subscription")
	}
	return svc.entitled(sub, NowFunc().UTC()), nil
}

func (svc *Service) entitled(sub Subscription, now time.Time) bool {
	switch sub.Status {
	case StatusActive, StatusTrialing:
		return true
	case StatusPastDue:
		return sub.CurrentPeriodEnd != nil && now.Before(sub.CurrentPeriodEnd.Add(svc.conf.GracePeriod))
	case StatusCanceled:
		return sub.CurrentPeriodEnd != nil && now.Before(*sub.CurrentPeriodEnd)
	}
	return false
}

// Access summarizes the entitlement of usr.
func (svc *Service) Access(ctx context.Context, usr user.User) (Access, error) {
	ok, err := svc.HasAccess(ctx, usr)
	if err != nil {
		return Access{}, err
	}
	res := Access{HasAccess: ok}
	sub, err := svc.repo.GetUserSubscription(ctx, usr.ID)
	switch {
	case err == nil:
		res.Subscription = &sub
	case errors.Cause(err) != ErrNotFound:
		return Access{}, errors.Wrap(err, "getting subscription")
	}
	return res, nil
}
