package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/simulation"
)

type simulationApi struct {
	svc     *simulation.Service
	debrief *debrief.Service
}

func registerSimulationAPI(g *echo.Group, authed []echo.MiddlewareFunc, limit *rateLimits, deps *Deps) {
	api := simulationApi{svc: deps.SimulationSvc, debrief: deps.DebriefSvc}

	cg := g.Group("/cases", authed...)
	cg.GET("", api.listCases)
	cg.GET("/:slug", api.getCase)
	cg.POST("/:slug/attempts", api.startAttempt)

	ag := g.Group("/attempts", authed...)
	ag.GET("", api.listAttempts)
	ag.GET("/:id", api.getAttempt)
	ag.POST("/:id/decisions", api.decide)
	ag.POST("/:id/debrief", api.generateDebrief, limit.For(ruleDebrief))
	ag.GET("/:id/debrief", api.getDebrief)
}

func (api *simulationApi) listCases(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := simulation.CaseFilter{ProgramID: ctx.QueryParam("program_id")}
	drafts, err := queryBool(ctx, "include_unpublished")
	if err != nil {
		return err
	}
	filter.IncludeUnpublished = drafts != nil && *drafts

	cases, err := api.svc.ListCases(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "listing cases")
	}
	if cases == nil {
		cases = []simulation.Case{}
	}
	return ctx.JSON(http.StatusOK, cases)
}

func (api *simulationApi) getCase(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.GetCase(ctx.Request().Context(), usr, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting case")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *simulationApi) startAttempt(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	view, created, err := api.svc.StartAttempt(ctx.Request().Context(), usr, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	if created {
		return ctx.JSON(http.StatusCreated, view)
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *simulationApi) listAttempts(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	attempts, err := api.svc.ListAttempts(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing attempts")
	}
	if attempts == nil {
		attempts = []simulation.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *simulationApi) getAttempt(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	view, err := api.svc.GetAttempt(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *simulationApi) decide(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data simulation.NewDecision
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDecision")
	}

	view, err := api.svc.Decide(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "deciding")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *simulationApi) generateDebrief(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	regenerate, err := queryBool(ctx, "regenerate")
	if err != nil {
		return err
	}

	d, created, err := api.debrief.Generate(ctx.Request().Context(), usr, ctx.Param("id"), regenerate != nil && *regenerate)
	if err != nil {
		return errors.Wrap(err, "generating debrief")
	}
	if created {
		return ctx.JSON(http.StatusCreated, d)
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *simulationApi) getDebrief(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	d, err := api.debrief.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting debrief")
	}
	return ctx.JSON(http.StatusOK, d)
}
