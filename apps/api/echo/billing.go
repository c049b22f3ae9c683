package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core/billing"
)

const (
	signatureHeader = "Paddle-Signature"
	maxWebhookBody  = 1 << 20
)

type billingApi struct {
	svc *billing.Service
}

func registerBillingAPI(g *echo.Group, authed []echo.MiddlewareFunc, limit *rateLimits, deps *Deps) {
	api := billingApi{svc: deps.BillingSvc}

	// signed by Paddle, not authed
	g.POST("/billing/webhook", api.webhook, limit.For(ruleWebhook))

	mg := g.Group("/me", authed...)
	mg.GET("/subscription", api.subscription)
}

func (api *billingApi) webhook(ctx echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBody))
	if err != nil {
		return errors.Wrap(err, "reading webhook body")
	}
	res, err := api.svc.HandleWebhook(ctx.Request().Context(), ctx.Request().Header.Get(signatureHeader), body)
	if err != nil {
		return errors.Wrap(err, "handling webhook")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"result": res})
}

func (api *billingApi) subscription(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	access, err := api.svc.Access(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting access")
	}
	return ctx.JSON(http.StatusOK, access)
}
