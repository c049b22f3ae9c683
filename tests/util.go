package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	logsvc "github.com/trezcool/kiongozi/services/logger"
	"github.com/trezcool/kiongozi/storage/database"
)

const WebhookSecret = "pdl_ntfset_test_secret"

// NewConfig returns a TEST configuration backed by the in-memory store.
func NewConfig() *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Database.Engine = "memory"
	conf.Billing.PaddleWebhookSecret = WebhookSecret
	conf.RateLimit.Enabled = false
	return conf
}

// NewLogger returns a logger that discards everything.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

// OpenDB connects to TEST_DATABASE_URL and migrates it. The test is skipped when the variable is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() {
		TruncateDB(t, db)
		_ = db.Close()
	})
	return db
}

// TruncateDB empties every application table.
func TruncateDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	q := `TRUNCATE debrief, attempt, sim_case, post, thread, lesson_progress, enrollment, lesson, module, program,
		billing_event, subscription, "user" CASCADE`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("TruncateDB() failed: %v", err)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateProgram saves a published program with one module holding nLessons reading lessons.
func CreateProgram(t *testing.T, repo curriculum.Repository, slug string, premium bool, nLessons int) (curriculum.Program, []curriculum.Lesson) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	prog, err := repo.SaveProgram(ctx, curriculum.Program{
		Slug:        slug,
		Title:       "Program " + slug,
		Level:       curriculum.LevelFoundation,
		IsPremium:   premium,
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateProgram() failed: %v", err)
	}
	mod, err := repo.SaveModule(ctx, curriculum.Module{ProgramID: prog.ID, Slug: "basics", Title: "Basics", Position: 1})
	if err != nil {
		t.Fatalf("CreateProgram() failed: %v", err)
	}

	lessons := make([]curriculum.Lesson, 0, nLessons)
	for i := 1; i <= nLessons; i++ {
		l, err := repo.SaveLesson(ctx, curriculum.Lesson{
			ProgramID:        prog.ID,
			ModuleID:         mod.ID,
			Slug:             "lesson-" + strconv.Itoa(i),
			Title:            "Lesson " + strconv.Itoa(i),
			Kind:             curriculum.KindReading,
			Body:             "Read me.",
			BodyHTML:         "<p>Read me.</p>\n",
			EstimatedMinutes: 5,
			Position:         i,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err != nil {
			t.Fatalf("CreateProgram() failed: %v", err)
		}
		lessons = append(lessons, l)
	}
	return prog, lessons
}

// CreateCase saves a published two-decision case tracking morale and budget.
func CreateCase(t *testing.T, repo simulation.Repository, slug, programID string) simulation.Case {
	t.Helper()
	now := time.Now().UTC()
	c, err := repo.SaveCase(context.Background(), simulation.Case{
		Slug:        slug,
		Title:       "Case " + slug,
		Brief:       "Your team missed its quarterly target.",
		ProgramID:   programID,
		IsPublished: true,
		Metrics: []simulation.Metric{
			{Key: "morale", Label: "Team morale", Initial: 50},
			{Key: "budget", Label: "Budget", Initial: 100},
		},
		Decisions: []simulation.DecisionPoint{
			{
				Key:    "first-move",
				Prompt: "How do you open the review?",
				Options: []simulation.Option{
					{Key: "listen", Label: "Listen first", Impact: map[string]int{"morale": 10}},
					{Key: "blame", Label: "Assign blame", Impact: map[string]int{"morale": -20}},
				},
			},
			{
				Key:    "resources",
				Prompt: "Do you hire a contractor?",
				Options: []simulation.Option{
					{Key: "hire", Label: "Hire", Impact: map[string]int{"budget": -30, "morale": 5}},
					{Key: "wait", Label: "Wait", Impact: map[string]int{}},
				},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCase() failed: %v", err)
	}
	return c
}
