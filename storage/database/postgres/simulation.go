package pgrepos

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kiongozi/core/simulation"
)

var (
	caseColumns = []string{
		"id", "slug", "title", "brief", "program_id", "is_published", "metrics", "decisions", "created_at", "updated_at",
	}
	attemptColumns = []string{
		"id", "case_id", "user_id", "status", "choices", "metrics", "score", "started_at", "completed_at",
	}
)

type (
	caseRow struct {
		ID          string      `db:"id"`
		Slug        string      `db:"slug"`
		Title       string      `db:"title"`
		Brief       string      `db:"brief"`
		ProgramID   null.String `db:"program_id"`
		IsPublished bool        `db:"is_published"`
		Metrics     []byte      `db:"metrics"`
		Decisions   []byte      `db:"decisions"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	attemptRow struct {
		ID          string    `db:"id"`
		CaseID      string    `db:"case_id"`
		UserID      string    `db:"user_id"`
		Status      string    `db:"status"`
		Choices     []byte    `db:"choices"`
		Metrics     []byte    `db:"metrics"`
		Score       int       `db:"score"`
		StartedAt   time.Time `db:"started_at"`
		CompletedAt null.Time `db:"completed_at"`
	}
)

func (r caseRow) simCase() (simulation.Case, error) {
	c := simulation.Case{
		ID: r.ID, Slug: r.Slug, Title: r.Title, Brief: r.Brief, ProgramID: r.ProgramID.String,
		IsPublished: r.IsPublished, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Metrics, &c.Metrics); err != nil {
		return simulation.Case{}, errors.Wrap(err, "decoding case metrics")
	}
	if err := json.Unmarshal(r.Decisions, &c.Decisions); err != nil {
		return simulation.Case{}, errors.Wrap(err, "decoding case decisions")
	}
	return c, nil
}

func (r attemptRow) attempt() (simulation.Attempt, error) {
	a := simulation.Attempt{
		ID: r.ID, CaseID: r.CaseID, UserID: r.UserID, Status: r.Status, Score: r.Score,
		StartedAt: r.StartedAt.UTC(), CompletedAt: utcPtr(r.CompletedAt),
	}
	if err := json.Unmarshal(r.Choices, &a.Choices); err != nil {
		return simulation.Attempt{}, errors.Wrap(err, "decoding attempt choices")
	}
	if err := json.Unmarshal(r.Metrics, &a.Metrics); err != nil {
		return simulation.Attempt{}, errors.Wrap(err, "decoding attempt metrics")
	}
	return a, nil
}

// jsonText encodes v for a jsonb column. nil slices and maps are stored as empty documents.
func jsonText(v interface{}, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

type simulationRepository struct {
	db *sqlx.DB
}

var _ simulation.Repository = (*simulationRepository)(nil) // interface compliance check

func NewSimulationRepository(db *sqlx.DB) simulation.Repository {
	return &simulationRepository{db: db}
}

func (repo *simulationRepository) cases(rows []caseRow) ([]simulation.Case, error) {
	cases := make([]simulation.Case, 0, len(rows))
	for _, r := range rows {
		c, err := r.simCase()
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func (repo *simulationRepository) QueryCases(ctx context.Context, filter simulation.CaseFilter) ([]simulation.Case, error) {
	var where []string
	var args []interface{}
	if !filter.IncludeUnpublished {
		where = append(where, "is_published")
	}
	if filter.ProgramID != "" {
		if !isUUID(filter.ProgramID) {
			return []simulation.Case{}, nil
		}
		args = append(args, filter.ProgramID)
		where = append(where, "program_id = $"+strconv.Itoa(len(args)))
	}

	q := selectQuery("sim_case", caseColumns)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY title, slug"

	var rows []caseRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying cases")
	}
	return repo.cases(rows)
}

func (repo *simulationRepository) getCase(ctx context.Context, where string, arg string) (simulation.Case, error) {
	var row caseRow
	if err := repo.db.GetContext(ctx, &row, selectQuery("sim_case", caseColumns)+" WHERE "+where, arg); err != nil {
		return simulation.Case{}, trapNoRows(err, simulation.ErrCaseNotFound, "getting case")
	}
	return row.simCase()
}

func (repo *simulationRepository) GetCaseByID(ctx context.Context, id string) (simulation.Case, error) {
	if !isUUID(id) {
		return simulation.Case{}, simulation.ErrCaseNotFound
	}
	return repo.getCase(ctx, "id = $1", id)
}

func (repo *simulationRepository) GetCaseBySlug(ctx context.Context, slug string) (simulation.Case, error) {
	return repo.getCase(ctx, "slug = $1", slug)
}

func (repo *simulationRepository) SaveCase(ctx context.Context, c simulation.Case) (simulation.Case, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	metrics, err := jsonText(c.Metrics, "[]")
	if err != nil {
		return simulation.Case{}, errors.Wrap(err, "encoding case metrics")
	}
	decisions, err := jsonText(c.Decisions, "[]")
	if err != nil {
		return simulation.Case{}, errors.Wrap(err, "encoding case decisions")
	}

	q := upsertQuery("sim_case", caseColumns, []string{"slug"}, "id", "created_at") + " RETURNING id, created_at"
	row := struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}{}
	err = repo.db.GetContext(ctx, &row, q,
		c.ID, c.Slug, c.Title, c.Brief, nullableUUID(c.ProgramID), c.IsPublished, metrics, decisions,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return simulation.Case{}, errors.Wrap(err, "saving case")
	}
	c.ID, c.CreatedAt = row.ID, row.CreatedAt.UTC()
	return c, nil
}

func attemptValues(a simulation.Attempt) ([]interface{}, error) {
	choices, err := jsonText(a.Choices, "[]")
	if err != nil {
		return nil, errors.Wrap(err, "encoding attempt choices")
	}
	metrics, err := jsonText(a.Metrics, "{}")
	if err != nil {
		return nil, errors.Wrap(err, "encoding attempt metrics")
	}
	return []interface{}{
		a.ID, a.CaseID, a.UserID, a.Status, choices, metrics, a.Score, a.StartedAt.UTC(), null.TimeFromPtr(a.CompletedAt),
	}, nil
}

func (repo *simulationRepository) CreateAttempt(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	a.ID = uuid.New().String()
	vals, err := attemptValues(a)
	if err != nil {
		return simulation.Attempt{}, err
	}
	if _, err = repo.db.ExecContext(ctx, insertQuery("attempt", attemptColumns), vals...); err != nil {
		return simulation.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo *simulationRepository) GetAttempt(ctx context.Context, id string) (simulation.Attempt, error) {
	if !isUUID(id) {
		return simulation.Attempt{}, simulation.ErrAttemptNotFound
	}
	var row attemptRow
	if err := repo.db.GetContext(ctx, &row, selectQuery("attempt", attemptColumns)+" WHERE id = $1", id); err != nil {
		return simulation.Attempt{}, trapNoRows(err, simulation.ErrAttemptNotFound, "getting attempt")
	}
	return row.attempt()
}

func (repo *simulationRepository) QueryAttempts(ctx context.Context, filter simulation.AttemptFilter) ([]simulation.Attempt, error) {
	var where []string
	var args []interface{}
	for col, val := range map[string]string{"user_id": filter.UserID, "case_id": filter.CaseID, "status": filter.Status} {
		if val == "" {
			continue
		}
		if col != "status" && !isUUID(val) {
			return []simulation.Attempt{}, nil
		}
		args = append(args, val)
		where = append(where, quote(col)+" = $"+strconv.Itoa(len(args)))
	}

	q := selectQuery("attempt", attemptColumns)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id"

	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]simulation.Attempt, 0, len(rows))
	for _, r := range rows {
		a, err := r.attempt()
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func (repo *simulationRepository) UpdateAttempt(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	if !isUUID(a.ID) {
		return simulation.Attempt{}, simulation.ErrAttemptNotFound
	}
	vals, err := attemptValues(a)
	if err != nil {
		return simulation.Attempt{}, err
	}
	res, err := repo.db.ExecContext(ctx, updateQuery("attempt", attemptColumns[1:]), append(vals[1:], a.ID)...)
	if err != nil {
		return simulation.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if err = requireAffected(res, simulation.ErrAttemptNotFound, "updating attempt"); err != nil {
		return simulation.Attempt{}, err
	}
	return a, nil
}
