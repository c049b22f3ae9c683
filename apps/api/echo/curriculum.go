package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/recommend"
)

type curriculumApi struct {
	svc       *curriculum.Service
	recommend *recommend.Service
	validate  *validator.Validate
}

func registerCurriculumAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps *Deps) {
	api := curriculumApi{
		svc:       deps.CurriculumSvc,
		recommend: deps.RecommendSvc,
		validate:  deps.Validate,
	}

	pg := g.Group("/programs", authed...)
	pg.GET("", api.listPrograms)
	pg.GET("/:slug", api.outline)
	pg.GET("/:slug/lessons/:lesson", api.lesson)
	pg.POST("/:slug/enroll", api.enroll)
	pg.GET("/:slug/progress", api.progress)

	lg := g.Group("/lessons", authed...)
	lg.POST("/:id/progress", api.recordProgress)

	mg := g.Group("/me", authed...)
	mg.GET("/enrollments", api.enrollments)
	mg.GET("/next-lesson", api.nextLesson)
	mg.GET("/dashboard", api.dashboard)
}

func (api *curriculumApi) listPrograms(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := curriculum.ProgramFilter{
		Search: ctx.QueryParam("search"),
		Level:  ctx.QueryParam("level"),
	}
	drafts, err := queryBool(ctx, "include_unpublished")
	if err != nil {
		return err
	}
	filter.IncludeUnpublished = drafts != nil && *drafts

	programs, err := api.svc.ListPrograms(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "listing programs")
	}
	if programs == nil {
		programs = []curriculum.Program{}
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *curriculumApi) outline(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	outline, err := api.svc.GetOutline(ctx.Request().Context(), usr, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting outline")
	}
	return ctx.JSON(http.StatusOK, outline)
}

func (api *curriculumApi) lesson(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), usr, ctx.Param("slug"), ctx.Param("lesson"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *curriculumApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	enrollment, created, err := api.svc.Enroll(ctx.Request().Context(), usr, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	if created {
		return ctx.JSON(http.StatusCreated, enrollment)
	}
	return ctx.JSON(http.StatusOK, enrollment)
}

func (api *curriculumApi) progress(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	progress, err := api.svc.Progress(ctx.Request().Context(), usr, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, progress)
}

func (api *curriculumApi) recordProgress(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data curriculum.ProgressRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	progress, err := api.svc.RecordProgress(ctx.Request().Context(), usr, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "recording progress")
	}
	return ctx.JSON(http.StatusOK, progress)
}

func (api *curriculumApi) enrollments(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	enrollments, err := api.svc.Enrollments(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrollments == nil {
		enrollments = []curriculum.ProgramProgress{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *curriculumApi) nextLesson(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	rec, err := api.recommend.Next(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "recommending lesson")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *curriculumApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	dashboard, err := api.recommend.Dashboard(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading dashboard")
	}
	return ctx.JSON(http.StatusOK, dashboard)
}
