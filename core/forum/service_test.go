package forum_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/services/email"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/tests"
)

type fixture struct {
	svc      *forum.Service
	mail     *emailsvc.ConsoleServiceMock
	programs curriculum.Repository
	bob      user.User
	eve      user.User
	coach    user.User
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)

	db := dummydb.Open()
	users := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	f := fixture{
		mail:     mailSvc,
		programs: dummydb.NewCurriculumRepository(db),
		bob:      testutil.CreateUser(t, users, "Bob", "bob", "bob@example.com", "", []string{user.RoleLearner}, true),
		eve:      testutil.CreateUser(t, users, "Eve", "eve", "eve@example.com", "", []string{user.RoleLearner}, true),
		coach:    testutil.CreateUser(t, users, "Cat", "cat", "cat@example.com", "", []string{user.RoleCoach}, true),
	}
	usrSvc := user.NewService(users, mailSvc, conf)
	programSvc := curriculum.NewService(f.programs, nil)
	f.svc = forum.NewService(dummydb.NewForumRepository(db), usrSvc, programSvc, mailSvc, testutil.NewValidator(), logger)
	return f
}

func TestCreateThread_program(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prog, _ := testutil.CreateProgram(t, f.programs, "coaching", false, 1)
	draft, _ := testutil.CreateProgram(t, f.programs, "draft", false, 1)
	draft.IsPublished = false
	_, err := f.programs.SaveProgram(ctx, draft)
	require.NoError(t, err)
	admin := user.User{ID: "admin", Roles: []string{user.RoleAdmin}}

	tests := []struct {
		name      string
		usr       user.User
		programID string
		wantErr   bool
	}{
		{name: "published program", usr: f.bob, programID: prog.ID},
		{name: "unknown program", usr: f.bob, programID: "lol", wantErr: true},
		{name: "unpublished program", usr: f.bob, programID: draft.ID, wantErr: true},
		{name: "admins see drafts", usr: admin, programID: draft.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, err := f.svc.CreateThread(ctx, tt.usr, forum.NewThread{ProgramID: tt.programID, Title: "Title", Body: "Body"})
			if tt.wantErr {
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, []core.FieldError{{Field: "program_id", Error: "unknown program"}}, verr.Fields)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.programID, th.ProgramID)
		})
	}
}

func TestCreateThread(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateThread(ctx, f.bob, forum.NewThread{Title: "   ", Body: "body"})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	th, err := f.svc.CreateThread(ctx, f.bob, forum.NewThread{Title: " Feedback loops ", Body: "How often?"})
	require.NoError(t, err)
	assert.Equal(t, "Feedback loops", th.Title)
	assert.Equal(t, f.bob.ID, th.AuthorID)
}

func TestReply(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	th, err := f.svc.CreateThread(ctx, f.bob, forum.NewThread{Title: "Feedback loops", Body: "How often?"})
	require.NoError(t, err)

	// replying to your own thread notifies nobody
	_, err = f.svc.Reply(ctx, f.bob, th.ID, forum.NewPost{Body: "Bump"})
	require.NoError(t, err)
	assert.Empty(t, f.mail.SentMessages())

	long := strings.Repeat("é", 300)
	_, err = f.svc.Reply(ctx, f.eve, th.ID, forum.NewPost{Body: long})
	require.NoError(t, err)
	sent := f.mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Eve")
	data := sent[0].TemplateData.(map[string]string)
	assert.Len(t, []rune(data["Excerpt"]), 201)

	view, err := f.svc.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ReplyCount)
	require.Len(t, view.Posts, 2)
	assert.Equal(t, "Bump", view.Posts[0].Body)

	_, err = f.svc.Reply(ctx, f.eve, "missing", forum.NewPost{Body: "hi"})
	assert.Equal(t, forum.ErrThreadNotFound, err)
}

func TestModeration(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	th, err := f.svc.CreateThread(ctx, f.bob, forum.NewThread{Title: "Feedback loops", Body: "How often?"})
	require.NoError(t, err)
	yes := true

	_, err = f.svc.Moderate(ctx, f.bob, th.ID, forum.Moderation{Lock: &yes})
	assert.Equal(t, core.ErrPermissionDenied, err)

	th, err = f.svc.Moderate(ctx, f.coach, th.ID, forum.Moderation{Lock: &yes, Pin: &yes})
	require.NoError(t, err)
	assert.True(t, th.IsLocked)
	assert.True(t, th.IsPinned)

	_, err = f.svc.Reply(ctx, f.eve, th.ID, forum.NewPost{Body: "hi"})
	assert.Equal(t, forum.ErrThreadLocked, err)
	_, err = f.svc.Reply(ctx, f.coach, th.ID, forum.NewPost{Body: "Closing this."})
	assert.NoError(t, err)

	other, err := f.svc.CreateThread(ctx, f.eve, forum.NewThread{Title: "Later thread", Body: "newer"})
	require.NoError(t, err)
	page, err := f.svc.ListThreads(ctx, forum.ThreadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, core.DefaultPerPage, page.PerPage)
	require.Len(t, page.Threads, 2)
	assert.Equal(t, th.ID, page.Threads[0].ID, "pinned threads come first")
	assert.Equal(t, other.ID, page.Threads[1].ID)

	page, err = f.svc.ListThreads(ctx, forum.ThreadFilter{Pagination: core.Pagination{Page: 2, PerPage: 1}})
	require.NoError(t, err)
	require.Len(t, page.Threads, 1)
	assert.Equal(t, other.ID, page.Threads[0].ID)
}

func TestEditAndDeletePost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	th, err := f.svc.CreateThread(ctx, f.bob, forum.NewThread{Title: "Feedback loops", Body: "How often?"})
	require.NoError(t, err)
	p, err := f.svc.Reply(ctx, f.eve, th.ID, forum.NewPost{Body: "Weekly"})
	require.NoError(t, err)

	_, err = f.svc.EditPost(ctx, f.bob, p.ID, forum.NewPost{Body: "Daily"})
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = f.svc.EditPost(ctx, f.coach, p.ID, forum.NewPost{Body: "Daily"})
	assert.Equal(t, core.ErrPermissionDenied, err, "moderators delete, they don't edit")

	p, err = f.svc.EditPost(ctx, f.eve, p.ID, forum.NewPost{Body: "Daily"})
	require.NoError(t, err)
	assert.Equal(t, "Daily", p.Body)

	assert.Equal(t, core.ErrPermissionDenied, f.svc.DeletePost(ctx, f.bob, p.ID))
	require.NoError(t, f.svc.DeletePost(ctx, f.coach, p.ID))

	_, err = f.svc.EditPost(ctx, f.eve, p.ID, forum.NewPost{Body: "Again"})
	assert.Equal(t, forum.ErrPostDeleted, err)

	view, err := f.svc.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, view.Posts, 1)
	assert.True(t, view.Posts[0].IsDeleted)
	assert.Equal(t, "[deleted]", view.Posts[0].Body)
}
