package pgrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/storage/database/postgres"
	"github.com/trezcool/kiongozi/tests"
)

func TestUserRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := pgrepos.NewUserRepository(db)
	ctx := context.Background()

	bob := testutil.CreateUser(t, repo, "Bob", "bob", "bob@example.com", "pwd", []string{user.RoleLearner}, true)
	joe := testutil.CreateUser(t, repo, "Joe", "joe", "joe@example.com", "pwd", []string{user.RoleAdminOwner}, false)

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "bob", "new@example.com"))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "new", "bob@example.com"))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "bob", "bob@example.com", bob))
	})

	t.Run("query", func(t *testing.T) {
		active := true
		users, err := repo.QueryUsers(ctx, &user.QueryFilter{IsActive: &active}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, bob.ID, users[0].ID)

		users, err = repo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleAdmin}}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, joe.ID, users[0].ID)

		users, err = repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "username", Ascending: false}})
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, joe.ID, users[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"joe@example.com"}})
		require.NoError(t, err)
		assert.Equal(t, joe.ID, got.ID)
		assert.NoError(t, got.CheckPassword("pwd"))

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("update and delete", func(t *testing.T) {
		bob.Name = "Bobby"
		_, err := repo.UpdateUser(ctx, bob)
		require.NoError(t, err)
		got, err := repo.GetUser(ctx, user.GetFilter{ID: bob.ID})
		require.NoError(t, err)
		assert.Equal(t, "Bobby", got.Name)

		n, err := repo.DeleteUsersByID(ctx, bob.ID, joe.ID, "nope")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestCurriculumRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := pgrepos.NewCurriculumRepository(db)
	ctx := context.Background()

	prog, lessons := testutil.CreateProgram(t, repo, "leading-teams", false, 2)

	// saving by slug updates in place
	prog.Title = "Leading Teams"
	again, err := repo.SaveProgram(ctx, prog)
	require.NoError(t, err)
	assert.Equal(t, prog.ID, again.ID)

	got, err := repo.QueryLessons(ctx, prog.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, lessons[0].ID, got[0].ID)
}

func TestForumRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	usr := testutil.CreateUser(t, pgrepos.NewUserRepository(db), "Bob", "bob", "bob@example.com", "", nil, true)
	repo := pgrepos.NewForumRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	th, err := repo.CreateThread(ctx, forum.Thread{
		AuthorID: usr.ID, Title: "Hello", Body: "First", LastPostAt: now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	later := now.Add(time.Minute)
	_, bumped, err := repo.AddPost(ctx, forum.Post{ThreadID: th.ID, AuthorID: usr.ID, Body: "Reply", CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.Equal(t, 1, bumped.ReplyCount)
	assert.True(t, later.Equal(bumped.LastPostAt))

	threads, count, err := repo.QueryThreads(ctx, forum.ThreadFilter{Search: "hell", Pagination: core.Pagination{Page: 1, PerPage: 10}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, threads, 1)
	assert.Equal(t, 1, threads[0].ReplyCount)
}

func TestSimulationAndDebriefRepositories(t *testing.T) {
	db := testutil.OpenDB(t)
	usr := testutil.CreateUser(t, pgrepos.NewUserRepository(db), "Bob", "bob", "bob@example.com", "", nil, true)
	sims := pgrepos.NewSimulationRepository(db)
	debriefs := pgrepos.NewDebriefRepository(db)
	ctx := context.Background()

	c := testutil.CreateCase(t, sims, "missed-target", "")
	got, err := sims.GetCaseBySlug(ctx, "missed-target")
	require.NoError(t, err)
	assert.Equal(t, c.Decisions, got.Decisions)

	a, err := sims.CreateAttempt(ctx, simulation.Attempt{
		CaseID: c.ID, UserID: usr.ID, Status: simulation.StatusInProgress, Metrics: c.InitialMetrics(), StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	d, err := debriefs.SaveDebrief(ctx, debrief.Debrief{AttemptID: a.ID, UserID: usr.ID, Summary: "Good", Rating: 4, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	replaced, err := debriefs.SaveDebrief(ctx, debrief.Debrief{AttemptID: a.ID, UserID: usr.ID, Summary: "Better", Rating: 5, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, d.ID, replaced.ID)
}

func TestBillingRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	usr := testutil.CreateUser(t, pgrepos.NewUserRepository(db), "Bob", "bob", "bob@example.com", "", nil, true)
	repo := pgrepos.NewBillingRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	e := billing.Event{EventID: "evt_1", EventType: "subscription.created", OccurredAt: now}
	sub := &billing.Subscription{ID: "sub_1", UserID: usr.ID, Status: billing.StatusActive, EventOccurredAt: now, UpdatedAt: now}
	require.NoError(t, repo.SaveEvent(ctx, e, sub))
	assert.Equal(t, billing.ErrEventExists, repo.SaveEvent(ctx, e, sub))

	seen, err := repo.HasEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	got, err := repo.GetUserSubscription(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, got.Status)
}
