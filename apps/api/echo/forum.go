package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core/forum"
)

type forumApi struct {
	svc *forum.Service
}

func registerForumAPI(g *echo.Group, authed []echo.MiddlewareFunc, limit *rateLimits, deps *Deps) {
	api := forumApi{svc: deps.ForumSvc}
	writes := limit.For(ruleForum)

	fg := g.Group("/forum", authed...)
	fg.GET("/threads", api.listThreads)
	fg.POST("/threads", api.createThread, writes)
	fg.GET("/threads/:id", api.getThread)
	fg.POST("/threads/:id/posts", api.reply, writes)
	fg.PUT("/threads/:id/moderation", api.moderate)
	fg.PUT("/posts/:id", api.editPost, writes)
	fg.DELETE("/posts/:id", api.deletePost)
}

func (api *forumApi) listThreads(ctx echo.Context) error {
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	filter := forum.ThreadFilter{
		ProgramID:  ctx.QueryParam("program_id"),
		Search:     ctx.QueryParam("search"),
		Pagination: page,
	}
	res, err := api.svc.ListThreads(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing threads")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *forumApi) getThread(ctx echo.Context) error {
	view, err := api.svc.GetThread(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting thread")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *forumApi) createThread(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data forum.NewThread
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewThread")
	}

	t, err := api.svc.CreateThread(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating thread")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *forumApi) reply(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data forum.NewPost
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}

	p, err := api.svc.Reply(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "replying")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *forumApi) editPost(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data forum.NewPost
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}

	p, err := api.svc.EditPost(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *forumApi) deletePost(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeletePost(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *forumApi) moderate(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data forum.Moderation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Moderation")
	}

	t, err := api.svc.Moderate(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "moderating thread")
	}
	return ctx.JSON(http.StatusOK, t)
}
