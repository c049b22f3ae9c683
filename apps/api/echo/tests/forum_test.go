package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/tests"
)

func Test_forumApi(t *testing.T) {
	e := setup(t)

	author := testutil.CreateUser(t, e.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleLearner}, true)
	peer := testutil.CreateUser(t, e.usrRepo, "Peer", "peer", "peer@test.cd", "", []string{user.RoleLearner}, true)
	coach := testutil.CreateUser(t, e.usrRepo, "Coach", "coach", "coach@test.cd", "", []string{user.RoleCoach}, true)
	authorToken, peerToken, coachToken := e.getToken(t, author), e.getToken(t, peer), e.getToken(t, coach)

	var thread forum.Thread
	t.Run("create thread", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"title": "this field cannot be blank", "body": "this field cannot be blank"}`)}
		checkCodeAndData(t, tt, e.do(t, http.MethodPost, "/v1/forum/threads", authorToken, []byte(`{"title": "  "}`), nil))

		tt = httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"program_id": "unknown program"}`)}
		checkCodeAndData(t, tt, e.do(t, http.MethodPost, "/v1/forum/threads", authorToken,
			marchallObj(t, forum.NewThread{ProgramID: "lol", Title: "Title", Body: "Body"}), nil))

		rec := e.do(t, http.MethodPost, "/v1/forum/threads", authorToken,
			marchallObj(t, forum.NewThread{Title: " Running my first 1:1 ", Body: "Any tips?"}), &thread)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Running my first 1:1", thread.Title)
		assert.Equal(t, author.ID, thread.AuthorID)
	})

	path := "/v1/forum/threads/" + thread.ID
	var post forum.Post
	t.Run("reply notifies the author", func(t *testing.T) {
		e.mail.Reset()
		rec := e.do(t, http.MethodPost, path+"/posts", peerToken, marchallObj(t, forum.NewPost{Body: "Listen more than you talk."}), &post)
		require.Equal(t, http.StatusCreated, rec.Code)

		sent := e.mail.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, author.Email, sent[0].To[0].Address)
		assert.True(t, strings.Contains(sent[0].TextContent, "Listen more than you talk."))

		// replying to your own thread sends nothing
		e.mail.Reset()
		rec = e.do(t, http.MethodPost, path+"/posts", authorToken, marchallObj(t, forum.NewPost{Body: "Thanks!"}), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, e.mail.SentMessages())
	})

	t.Run("get thread", func(t *testing.T) {
		var view forum.ThreadView
		rec := e.do(t, http.MethodGet, path, peerToken, nil, &view)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, view.ReplyCount)
		assert.Len(t, view.Posts, 2)

		rec = e.do(t, http.MethodGet, "/v1/forum/threads/lol", peerToken, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("posts are edited by their author only", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/v1/forum/posts/"+post.ID, authorToken, marchallObj(t, forum.NewPost{Body: "hijacked"}), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var edited forum.Post
		rec = e.do(t, http.MethodPut, "/v1/forum/posts/"+post.ID, peerToken, marchallObj(t, forum.NewPost{Body: "Listen first."}), &edited)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Listen first.", edited.Body)
	})

	t.Run("moderation", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path+"/moderation", peerToken, []byte(`{"lock": true}`), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var locked forum.Thread
		rec = e.do(t, http.MethodPut, path+"/moderation", coachToken, []byte(`{"lock": true, "pin": true}`), &locked)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, locked.IsLocked)
		assert.True(t, locked.IsPinned)

		tt := httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "thread is locked"})}
		checkCodeAndData(t, tt, e.do(t, http.MethodPost, path+"/posts", peerToken, marchallObj(t, forum.NewPost{Body: "one more"}), nil))

		rec = e.do(t, http.MethodPost, path+"/posts", coachToken, marchallObj(t, forum.NewPost{Body: "Closing this one."}), nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("delete post", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/v1/forum/posts/"+post.ID, authorToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = e.do(t, http.MethodDelete, "/v1/forum/posts/"+post.ID, coachToken, nil, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		var view forum.ThreadView
		rec = e.do(t, http.MethodGet, path, peerToken, nil, &view)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, view.Posts)
		assert.Equal(t, "[deleted]", view.Posts[0].Body)
	})

	t.Run("list threads", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/forum/threads", peerToken, marchallObj(t, forum.NewThread{Title: "Delegation", Body: "How much is too much?"}), nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var page forum.ThreadPage
		rec = e.do(t, http.MethodGet, "/v1/forum/threads?per_page=1", peerToken, nil, &page)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, page.Count)
		assert.Equal(t, 1, page.PerPage)
		require.Len(t, page.Threads, 1)
		assert.Equal(t, thread.ID, page.Threads[0].ID, "pinned threads come first")

		rec = e.do(t, http.MethodGet, "/v1/forum/threads?search=delegat", peerToken, nil, &page)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, page.Threads, 1)
		assert.Equal(t, "Delegation", page.Threads[0].Title)

		rec = e.do(t, http.MethodGet, "/v1/forum/threads?page=lol", peerToken, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
