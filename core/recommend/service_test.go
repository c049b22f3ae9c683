package recommend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/recommend"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/tests"
)

type freeAccess struct{}

func (freeAccess) HasAccess(context.Context, user.User) (bool, error) { return true, nil }

func TestNext(t *testing.T) {
	ctx := context.Background()
	db := dummydb.Open()
	repo := dummydb.NewCurriculumRepository(db)
	usr := testutil.CreateUser(t, dummydb.NewUserRepository(db), "Lea", "lea", "lea@example.com", "", []string{user.RoleLearner}, true)
	courses := curriculum.NewService(repo, freeAccess{})
	svc := recommend.NewService(courses)

	_, err := svc.Next(ctx, usr)
	assert.Equal(t, recommend.ErrNoRecommendation, err)

	dash, err := svc.Dashboard(ctx, usr)
	require.NoError(t, err)
	assert.Nil(t, dash.Recommendation)
	assert.Empty(t, dash.Enrollments)

	testutil.CreateProgram(t, repo, "alpha", false, 1)
	featured, lessons := testutil.CreateProgram(t, repo, "beta", false, 3)
	featured.IsFeatured = true
	_, err = repo.SaveProgram(ctx, featured)
	require.NoError(t, err)
	testutil.CreateProgram(t, repo, "empty", false, 0)

	steps := []struct {
		name       string
		act        func(t *testing.T)
		wantReason string
		wantLesson string
	}{
		{
			name:       "featured programs are discovered first",
			act:        func(t *testing.T) {},
			wantReason: recommend.ReasonDiscover,
			wantLesson: lessons[0].ID,
		},
		{
			name: "enrolled programs start at their first lesson",
			act: func(t *testing.T) {
				_, _, err := courses.Enroll(ctx, usr, "beta")
				require.NoError(t, err)
			},
			wantReason: recommend.ReasonStart,
			wantLesson: lessons[0].ID,
		},
		{
			name: "continue after the last completed lesson",
			act: func(t *testing.T) {
				_, err := courses.RecordProgress(ctx, usr, lessons[0].ID, curriculum.StatusCompleted)
				require.NoError(t, err)
			},
			wantReason: recommend.ReasonContinue,
			wantLesson: lessons[1].ID,
		},
		{
			name: "lessons in progress are resumed",
			act: func(t *testing.T) {
				_, err := courses.RecordProgress(ctx, usr, lessons[2].ID, curriculum.StatusInProgress)
				require.NoError(t, err)
			},
			wantReason: recommend.ReasonResume,
			wantLesson: lessons[2].ID,
		},
		{
			name: "completed programs make room for others",
			act: func(t *testing.T) {
				for _, l := range lessons {
					_, err := courses.RecordProgress(ctx, usr, l.ID, curriculum.StatusCompleted)
					require.NoError(t, err)
				}
			},
			wantReason: recommend.ReasonDiscover,
		},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			tt.act(t)
			rec, err := svc.Next(ctx, usr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReason, rec.Reason)
			if tt.wantLesson != "" {
				assert.Equal(t, tt.wantLesson, rec.Lesson.ID)
			} else {
				assert.Equal(t, "alpha", rec.Program.Slug)
			}
			assert.Empty(t, rec.Lesson.Body)
		})
	}

	dash, err = svc.Dashboard(ctx, usr)
	require.NoError(t, err)
	require.Len(t, dash.Enrollments, 1)
	assert.Equal(t, 100, dash.Enrollments[0].Percent)
	require.NotNil(t, dash.Recommendation)
}

func TestNext_ordering(t *testing.T) {
	ctx := context.Background()
	db := dummydb.Open()
	repo := dummydb.NewCurriculumRepository(db)
	users := dummydb.NewUserRepository(db)
	svc := recommend.NewService(curriculum.NewService(repo, freeAccess{}))

	empty, _ := testutil.CreateProgram(t, repo, "empty", false, 0)
	empty.IsFeatured = true
	_, err := repo.SaveProgram(ctx, empty)
	require.NoError(t, err)
	older, olderLessons := testutil.CreateProgram(t, repo, "older", false, 1)
	newer, newerLessons := testutil.CreateProgram(t, repo, "newer", false, 1)

	enrolled := testutil.CreateUser(t, users, "Lea", "lea", "lea@example.com", "", []string{user.RoleLearner}, true)
	now := time.Now().UTC()
	for _, e := range []struct {
		program curriculum.Program
		age     time.Duration
	}{{empty, 3 * time.Hour}, {newer, time.Hour}, {older, 2 * time.Hour}} {
		at := now.Add(-e.age)
		_, err := repo.SaveEnrollment(ctx, curriculum.Enrollment{UserID: enrolled.ID, ProgramID: e.program.ID, EnrolledAt: at, LastActivityAt: at})
		require.NoError(t, err)
	}
	stranger := testutil.CreateUser(t, users, "Max", "max", "max@example.com", "", []string{user.RoleLearner}, true)

	tests := []struct {
		name        string
		usr         user.User
		wantReason  string
		wantProgram string
		wantLesson  string
	}{
		{
			name:        "start picks the oldest enrollment with lessons",
			usr:         enrolled,
			wantReason:  recommend.ReasonStart,
			wantProgram: "older",
			wantLesson:  olderLessons[0].ID,
		},
		{
			name:        "discover skips programs without lessons",
			usr:         stranger,
			wantReason:  recommend.ReasonDiscover,
			wantProgram: "newer",
			wantLesson:  newerLessons[0].ID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := svc.Next(ctx, tt.usr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReason, rec.Reason)
			assert.Equal(t, tt.wantProgram, rec.Program.Slug)
			assert.Equal(t, tt.wantLesson, rec.Lesson.ID)
		})
	}
}
