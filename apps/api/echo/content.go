package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/content"
)

const maxBundleBody = 8 << 20

type contentApi struct {
	svc      *content.Service
	validate *validator.Validate
}

// PublicationRequest publishes or unpublishes a program or case.
type PublicationRequest struct {
	Published *bool `json:"published" validate:"required"`
}

func registerContentAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := contentApi{svc: deps.ContentSvc, validate: deps.Validate}

	mw := append(append([]echo.MiddlewareFunc{}, authed...), editorMiddleware())
	ag := g.Group("/admin", mw...)
	ag.POST("/content/import", api.importBundle)
	ag.PUT("/programs/:slug/publication", api.publishProgram)
	ag.PUT("/cases/:slug/publication", api.publishCase)
}

func (api *contentApi) importBundle(ctx echo.Context) error {
	dryRun, err := queryBool(ctx, "dry_run")
	if err != nil {
		return err
	}
	bundle, err := content.Parse(http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxBundleBody))
	if err != nil {
		return core.NewValidationError(err)
	}

	report, err := api.svc.Import(ctx.Request().Context(), bundle, dryRun != nil && *dryRun)
	if err != nil {
		return errors.Wrap(err, "importing bundle")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *contentApi) bindPublication(ctx echo.Context) (bool, error) {
	var data PublicationRequest
	if err := ctx.Bind(&data); err != nil {
		return false, errors.Wrap(err, "binding to PublicationRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return false, err
	}
	return *data.Published, nil
}

func (api *contentApi) publishProgram(ctx echo.Context) error {
	publish, err := api.bindPublication(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.PublishProgram(ctx.Request().Context(), ctx.Param("slug"), publish)
	if err != nil {
		return errors.Wrap(err, "publishing program")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *contentApi) publishCase(ctx echo.Context) error {
	publish, err := api.bindPublication(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.PublishCase(ctx.Request().Context(), ctx.Param("slug"), publish)
	if err != nil {
		return errors.Wrap(err, "publishing case")
	}
	return ctx.JSON(http.StatusOK, c)
}
