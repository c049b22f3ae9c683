package curriculum_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/tests"
)

type entitlements map[string]bool

func (e entitlements) HasAccess(_ context.Context, usr user.User) (bool, error) {
	return e[usr.ID], nil
}

type fixture struct {
	svc     *curriculum.Service
	repo    curriculum.Repository
	learner user.User
	member  user.User
	admin   user.User
	access  entitlements
}

func setup(t *testing.T) fixture {
	db := dummydb.Open()
	users := dummydb.NewUserRepository(db)
	repo := dummydb.NewCurriculumRepository(db)

	f := fixture{
		repo:    repo,
		learner: testutil.CreateUser(t, users, "Lea", "lea", "lea@example.com", "", []string{user.RoleLearner}, true),
		member:  testutil.CreateUser(t, users, "Max", "max", "max@example.com", "", []string{user.RoleLearner}, true),
		admin:   testutil.CreateUser(t, users, "Ada", "ada", "ada@example.com", "", []string{user.RoleAdminOwner}, true),
	}
	f.access = entitlements{f.member.ID: true}
	f.svc = curriculum.NewService(repo, f.access)
	return f
}

func TestListPrograms(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateProgram(t, f.repo, "foundations", false, 1)
	draft, _ := testutil.CreateProgram(t, f.repo, "draft", false, 1)
	draft.IsPublished = false
	_, err := f.repo.SaveProgram(ctx, draft)
	require.NoError(t, err)

	tests := []struct {
		name   string
		usr    user.User
		filter curriculum.ProgramFilter
		want   []string
	}{
		{name: "learner sees published", usr: f.learner, filter: curriculum.ProgramFilter{IncludeUnpublished: true}, want: []string{"foundations"}},
		{name: "admin sees drafts", usr: f.admin, filter: curriculum.ProgramFilter{IncludeUnpublished: true}, want: []string{"draft", "foundations"}},
		{name: "search", usr: f.admin, filter: curriculum.ProgramFilter{Search: "  found ", IncludeUnpublished: true}, want: []string{"foundations"}},
		{name: "level", usr: f.learner, filter: curriculum.ProgramFilter{Level: "EXECUTIVE"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			programs, err := f.svc.ListPrograms(ctx, tt.usr, tt.filter)
			require.NoError(t, err)
			slugs := make([]string, 0, len(programs))
			for _, p := range programs {
				slugs = append(slugs, p.Slug)
			}
			assert.ElementsMatch(t, tt.want, slugs)
		})
	}

	_, err = f.svc.GetProgram(ctx, f.learner, "draft")
	assert.True(t, core.IsNotFound(err))
	_, err = f.svc.GetProgram(ctx, f.admin, "draft")
	assert.NoError(t, err)
}

func TestGetOutline(t *testing.T) {
	f := setup(t)
	prog, lessons := testutil.CreateProgram(t, f.repo, "foundations", false, 3)

	outline, err := f.svc.GetOutline(context.Background(), f.learner, prog.Slug)
	require.NoError(t, err)
	require.Len(t, outline.Modules, 1)
	flat := outline.Lessons()
	require.Len(t, flat, 3)
	for i, l := range flat {
		assert.Equal(t, lessons[i].ID, l.ID)
		assert.Empty(t, l.Body, "outline lessons are summaries")
	}
}

func TestEnroll(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreateProgram(t, f.repo, "free", false, 1)
	testutil.CreateProgram(t, f.repo, "premium", true, 1)

	tests := []struct {
		name        string
		usr         user.User
		slug        string
		wantErr     error
		wantCreated bool
	}{
		{name: "free program", usr: f.learner, slug: "free", wantCreated: true},
		{name: "enrolling twice", usr: f.learner, slug: "free"},
		{name: "premium without subscription", usr: f.learner, slug: "premium", wantErr: curriculum.ErrPremiumRequired},
		{name: "premium with subscription", usr: f.member, slug: "premium", wantCreated: true},
		{name: "admins bypass subscriptions", usr: f.admin, slug: "premium", wantCreated: true},
		{name: "unknown program", usr: f.learner, slug: "nope", wantErr: curriculum.ErrProgramNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, created, err := f.svc.Enroll(ctx, tt.usr, tt.slug)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
			assert.Equal(t, tt.usr.ID, e.UserID)
		})
	}
}

func TestGetPremiumLesson(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prog, lessons := testutil.CreateProgram(t, f.repo, "premium", true, 1)

	_, err := f.svc.GetLesson(ctx, f.member, prog.Slug, lessons[0].Slug)
	assert.Equal(t, curriculum.ErrNotEnrolled, err)
	assert.True(t, core.IsConflict(err))

	_, _, err = f.svc.Enroll(ctx, f.member, prog.Slug)
	require.NoError(t, err)
	l, err := f.svc.GetLesson(ctx, f.member, prog.Slug, lessons[0].Slug)
	require.NoError(t, err)
	assert.NotEmpty(t, l.BodyHTML)

	_, err = f.svc.GetLesson(ctx, f.member, prog.Slug, "missing")
	assert.Equal(t, curriculum.ErrLessonNotFound, err)
}

func TestLapsedSubscription(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prog, lessons := testutil.CreateProgram(t, f.repo, "premium", true, 2)

	_, _, err := f.svc.Enroll(ctx, f.member, prog.Slug)
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, f.member, lessons[0].ID, curriculum.StatusInProgress)
	require.NoError(t, err)

	f.access[f.member.ID] = false

	_, err = f.svc.GetLesson(ctx, f.member, prog.Slug, lessons[0].Slug)
	assert.Equal(t, curriculum.ErrPremiumRequired, err)
	assert.True(t, core.IsPermissionDenied(err))
	_, err = f.svc.RecordProgress(ctx, f.member, lessons[1].ID, curriculum.StatusCompleted)
	assert.Equal(t, curriculum.ErrPremiumRequired, err)

	// the enrollment survives and access comes back with the subscription
	f.access[f.member.ID] = true
	_, err = f.svc.GetLesson(ctx, f.member, prog.Slug, lessons[0].Slug)
	assert.NoError(t, err)

	_, err = f.svc.GetLesson(ctx, f.admin, prog.Slug, lessons[0].Slug)
	assert.NoError(t, err)
}

func TestRecordProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prog, lessons := testutil.CreateProgram(t, f.repo, "foundations", false, 2)

	_, err := f.svc.RecordProgress(ctx, f.learner, lessons[0].ID, curriculum.StatusCompleted)
	assert.Equal(t, curriculum.ErrNotEnrolled, err)

	_, _, err = f.svc.Enroll(ctx, f.learner, prog.Slug)
	require.NoError(t, err)

	p, err := f.svc.RecordProgress(ctx, f.learner, lessons[0].ID, curriculum.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, curriculum.StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)

	// completion is sticky
	p, err = f.svc.RecordProgress(ctx, f.learner, lessons[0].ID, curriculum.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, curriculum.StatusCompleted, p.Status)

	pp, err := f.svc.Progress(ctx, f.learner, prog.Slug)
	require.NoError(t, err)
	assert.Equal(t, 50, pp.Percent)
	require.NotNil(t, pp.Enrollment)
	assert.False(t, pp.Enrollment.IsCompleted())

	_, err = f.svc.RecordProgress(ctx, f.learner, lessons[1].ID, curriculum.StatusCompleted)
	require.NoError(t, err)
	pp, err = f.svc.Progress(ctx, f.learner, prog.Slug)
	require.NoError(t, err)
	assert.Equal(t, 100, pp.Percent)
	assert.True(t, pp.Enrollment.IsCompleted())

	enrollments, err := f.svc.Enrollments(ctx, f.learner)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 2, enrollments[0].CompletedLessons)
}
