package pgrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kiongozi/core/curriculum"
)

var (
	programColumns = []string{
		"id", "slug", "title", "summary", "level", "is_premium", "is_featured", "is_published", "position",
		"created_at", "updated_at",
	}
	moduleColumns = []string{"id", "program_id", "slug", "title", "position"}
	lessonColumns = []string{
		"id", "program_id", "module_id", "slug", "title", "kind", "body", "body_html", "video_url", "case_slug",
		"estimated_minutes", "position", "content_hash", "created_at", "updated_at",
	}
	enrollmentColumns = []string{"user_id", "program_id", "enrolled_at", "last_activity_at", "completed_at"}
	progressColumns   = []string{"user_id", "lesson_id", "program_id", "status", "started_at", "completed_at", "updated_at"}
)

type (
	programRow struct {
		ID          string    `db:"id"`
		Slug        string    `db:"slug"`
		Title       string    `db:"title"`
		Summary     string    `db:"summary"`
		Level       string    `db:"level"`
		IsPremium   bool      `db:"is_premium"`
		IsFeatured  bool      `db:"is_featured"`
		IsPublished bool      `db:"is_published"`
		Position    int       `db:"position"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	moduleRow struct {
		ID        string `db:"id"`
		ProgramID string `db:"program_id"`
		Slug      string `db:"slug"`
		Title     string `db:"title"`
		Position  int    `db:"position"`
	}

	lessonRow struct {
		ID               string      `db:"id"`
		ProgramID        string      `db:"program_id"`
		ModuleID         string      `db:"module_id"`
		Slug             string      `db:"slug"`
		Title            string      `db:"title"`
		Kind             string      `db:"kind"`
		Body             string      `db:"body"`
		BodyHTML         string      `db:"body_html"`
		VideoURL         null.String `db:"video_url"`
		CaseSlug         null.String `db:"case_slug"`
		EstimatedMinutes int         `db:"estimated_minutes"`
		Position         int         `db:"position"`
		ContentHash      string      `db:"content_hash"`
		CreatedAt        time.Time   `db:"created_at"`
		UpdatedAt        time.Time   `db:"updated_at"`
	}

	enrollmentRow struct {
		UserID         string    `db:"user_id"`
		ProgramID      string    `db:"program_id"`
		EnrolledAt     time.Time `db:"enrolled_at"`
		LastActivityAt time.Time `db:"last_activity_at"`
		CompletedAt    null.Time `db:"completed_at"`
	}

	progressRow struct {
		UserID      string    `db:"user_id"`
		LessonID    string    `db:"lesson_id"`
		ProgramID   string    `db:"program_id"`
		Status      string    `db:"status"`
		StartedAt   time.Time `db:"started_at"`
		CompletedAt null.Time `db:"completed_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
)

func (r programRow) program() curriculum.Program {
	return curriculum.Program{
		ID: r.ID, Slug: r.Slug, Title: r.Title, Summary: r.Summary, Level: r.Level,
		IsPremium: r.IsPremium, IsFeatured: r.IsFeatured, IsPublished: r.IsPublished, Position: r.Position,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r lessonRow) lesson() curriculum.Lesson {
	return curriculum.Lesson{
		ID: r.ID, ProgramID: r.ProgramID, ModuleID: r.ModuleID, Slug: r.Slug, Title: r.Title, Kind: r.Kind,
		Body: r.Body, BodyHTML: r.BodyHTML, VideoURL: r.VideoURL.String, CaseSlug: r.CaseSlug.String,
		EstimatedMinutes: r.EstimatedMinutes, Position: r.Position, ContentHash: r.ContentHash,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r enrollmentRow) enrollment() curriculum.Enrollment {
	return curriculum.Enrollment{
		UserID: r.UserID, ProgramID: r.ProgramID, EnrolledAt: r.EnrolledAt.UTC(), LastActivityAt: r.LastActivityAt.UTC(),
		CompletedAt: utcPtr(r.CompletedAt),
	}
}

func (r progressRow) progress() curriculum.LessonProgress {
	return curriculum.LessonProgress{
		UserID: r.UserID, LessonID: r.LessonID, ProgramID: r.ProgramID, Status: r.Status,
		StartedAt: r.StartedAt.UTC(), CompletedAt: utcPtr(r.CompletedAt), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type curriculumRepository struct {
	db *sqlx.DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *sqlx.DB) curriculum.Repository {
	return &curriculumRepository{db: db}
}

func (repo *curriculumRepository) QueryPrograms(ctx context.Context, filter curriculum.ProgramFilter) ([]curriculum.Program, error) {
	var where []string
	var args []interface{}
	if !filter.IncludeUnpublished {
		where = append(where, "is_published")
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		where = append(where, "level = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(title ILIKE $"+n+" OR summary ILIKE $"+n+")")
	}

	q := selectQuery("program", programColumns)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY is_featured DESC, position ASC, title ASC"

	var rows []programRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	programs := make([]curriculum.Program, 0, len(rows))
	for _, r := range rows {
		programs = append(programs, r.program())
	}
	curriculum.SortPrograms(programs)
	return programs, nil
}

func (repo *curriculumRepository) GetProgram(ctx context.Context, filter curriculum.ProgramGetFilter) (curriculum.Program, error) {
	q := selectQuery("program", programColumns)
	var arg string
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return curriculum.Program{}, curriculum.ErrProgramNotFound
		}
		q, arg = q+" WHERE id = $1", filter.ID
	case filter.Slug != "":
		q, arg = q+" WHERE slug = $1", filter.Slug
	default:
		return curriculum.Program{}, curriculum.ErrProgramNotFound
	}

	var row programRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		return curriculum.Program{}, trapNoRows(err, curriculum.ErrProgramNotFound, "getting program")
	}
	return row.program(), nil
}

func (repo *curriculumRepository) SaveProgram(ctx context.Context, p curriculum.Program) (curriculum.Program, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	q := upsertQuery("program", programColumns, []string{"slug"}, "id", "created_at") + " RETURNING id, created_at"
	row := struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}{}
	err := repo.db.GetContext(ctx, &row, q,
		p.ID, p.Slug, p.Title, p.Summary, p.Level, p.IsPremium, p.IsFeatured, p.IsPublished, p.Position,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return curriculum.Program{}, errors.Wrap(err, "saving program")
	}
	p.ID, p.CreatedAt = row.ID, row.CreatedAt.UTC()
	return p, nil
}

func (repo *curriculumRepository) QueryModules(ctx context.Context, programID string) ([]curriculum.Module, error) {
	if !isUUID(programID) {
		return []curriculum.Module{}, nil
	}
	var rows []moduleRow
	q := selectQuery("module", moduleColumns) + " WHERE program_id = $1 ORDER BY position, slug"
	if err := repo.db.SelectContext(ctx, &rows, q, programID); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	modules := make([]curriculum.Module, 0, len(rows))
	for _, r := range rows {
		modules = append(modules, curriculum.Module(r))
	}
	return modules, nil
}

func (repo *curriculumRepository) SaveModule(ctx context.Context, m curriculum.Module) (curriculum.Module, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	q := upsertQuery("module", moduleColumns, []string{"program_id", "slug"}, "id") + " RETURNING id"
	if err := repo.db.GetContext(ctx, &m.ID, q, m.ID, m.ProgramID, m.Slug, m.Title, m.Position); err != nil {
		return curriculum.Module{}, errors.Wrap(err, "saving module")
	}
	return m, nil
}

func (repo *curriculumRepository) QueryLessons(ctx context.Context, programID string) ([]curriculum.Lesson, error) {
	if !isUUID(programID) {
		return []curriculum.Lesson{}, nil
	}
	var rows []lessonRow
	q := selectQuery("lesson", lessonColumns) + " WHERE program_id = $1 ORDER BY position, slug"
	if err := repo.db.SelectContext(ctx, &rows, q, programID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]curriculum.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo *curriculumRepository) GetLesson(ctx context.Context, id string) (curriculum.Lesson, error) {
	if !isUUID(id) {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, selectQuery("lesson", lessonColumns)+" WHERE id = $1", id); err != nil {
		return curriculum.Lesson{}, trapNoRows(err, curriculum.ErrLessonNotFound, "getting lesson")
	}
	return row.lesson(), nil
}

func (repo *curriculumRepository) SaveLesson(ctx context.Context, l curriculum.Lesson) (curriculum.Lesson, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	q := upsertQuery("lesson", lessonColumns, []string{"program_id", "slug"}, "id", "created_at") + " RETURNING id, created_at"
	row := struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}{}
	err := repo.db.GetContext(ctx, &row, q,
		l.ID, l.ProgramID, l.ModuleID, l.Slug, l.Title, l.Kind, l.Body, l.BodyHTML,
		null.NewString(l.VideoURL, l.VideoURL != ""), null.NewString(l.CaseSlug, l.CaseSlug != ""),
		l.EstimatedMinutes, l.Position, l.ContentHash, l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return curriculum.Lesson{}, errors.Wrap(err, "saving lesson")
	}
	l.ID, l.CreatedAt = row.ID, row.CreatedAt.UTC()
	return l, nil
}

func (repo *curriculumRepository) GetEnrollment(ctx context.Context, userID, programID string) (curriculum.Enrollment, error) {
	if !isUUID(userID) || !isUUID(programID) {
		return curriculum.Enrollment{}, curriculum.ErrEnrollmentNotFound
	}
	var row enrollmentRow
	q := selectQuery("enrollment", enrollmentColumns) + " WHERE user_id = $1 AND program_id = $2"
	if err := repo.db.GetContext(ctx, &row, q, userID, programID); err != nil {
		return curriculum.Enrollment{}, trapNoRows(err, curriculum.ErrEnrollmentNotFound, "getting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *curriculumRepository) QueryEnrollments(ctx context.Context, userID string) ([]curriculum.Enrollment, error) {
	if !isUUID(userID) {
		return []curriculum.Enrollment{}, nil
	}
	var rows []enrollmentRow
	q := selectQuery("enrollment", enrollmentColumns) + " WHERE user_id = $1 ORDER BY last_activity_at DESC"
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]curriculum.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.enrollment())
	}
	return enrollments, nil
}

func (repo *curriculumRepository) SaveEnrollment(ctx context.Context, e curriculum.Enrollment) (curriculum.Enrollment, error) {
	q := upsertQuery("enrollment", enrollmentColumns, []string{"user_id", "program_id"})
	_, err := repo.db.ExecContext(ctx, q,
		e.UserID, e.ProgramID, e.EnrolledAt.UTC(), e.LastActivityAt.UTC(), null.TimeFromPtr(e.CompletedAt))
	if err != nil {
		return curriculum.Enrollment{}, errors.Wrap(err, "saving enrollment")
	}
	return e, nil
}

func (repo *curriculumRepository) GetProgress(ctx context.Context, userID, lessonID string) (curriculum.LessonProgress, error) {
	if !isUUID(userID) || !isUUID(lessonID) {
		return curriculum.LessonProgress{}, curriculum.ErrProgressNotFound
	}
	var row progressRow
	q := selectQuery("lesson_progress", progressColumns) + " WHERE user_id = $1 AND lesson_id = $2"
	if err := repo.db.GetContext(ctx, &row, q, userID, lessonID); err != nil {
		return curriculum.LessonProgress{}, trapNoRows(err, curriculum.ErrProgressNotFound, "getting progress")
	}
	return row.progress(), nil
}

func (repo *curriculumRepository) QueryProgress(ctx context.Context, userID, programID string) ([]curriculum.LessonProgress, error) {
	if !isUUID(userID) || (programID != "" && !isUUID(programID)) {
		return []curriculum.LessonProgress{}, nil
	}
	q := selectQuery("lesson_progress", progressColumns) + " WHERE user_id = $1"
	args := []interface{}{userID}
	if programID != "" {
		q += " AND program_id = $2"
		args = append(args, programID)
	}

	var rows []progressRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	progress := make([]curriculum.LessonProgress, 0, len(rows))
	for _, r := range rows {
		progress = append(progress, r.progress())
	}
	return progress, nil
}

func (repo *curriculumRepository) SaveProgress(ctx context.Context, p curriculum.LessonProgress) (curriculum.LessonProgress, error) {
	q := upsertQuery("lesson_progress", progressColumns, []string{"user_id", "lesson_id"}, "started_at")
	_, err := repo.db.ExecContext(ctx, q,
		p.UserID, p.LessonID, p.ProgramID, p.Status, p.StartedAt.UTC(), null.TimeFromPtr(p.CompletedAt), p.UpdatedAt.UTC())
	if err != nil {
		return curriculum.LessonProgress{}, errors.Wrap(err, "saving progress")
	}
	return p, nil
}
