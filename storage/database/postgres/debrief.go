package pgrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core/debrief"
)

var debriefColumns = []string{
	"id", "attempt_id", "user_id", "summary", "strengths", "improvements", "rating", "model", "created_at",
}

type debriefRow struct {
	ID           string         `db:"id"`
	AttemptID    string         `db:"attempt_id"`
	UserID       string         `db:"user_id"`
	Summary      string         `db:"summary"`
	Strengths    pq.StringArray `db:"strengths"`
	Improvements pq.StringArray `db:"improvements"`
	Rating       int            `db:"rating"`
	Model        string         `db:"model"`
	CreatedAt    time.Time      `db:"created_at"`
}

type debriefRepository struct {
	db *sqlx.DB
}

var _ debrief.Repository = (*debriefRepository)(nil) // interface compliance check

func NewDebriefRepository(db *sqlx.DB) debrief.Repository {
	return &debriefRepository{db: db}
}

func (repo *debriefRepository) GetDebrief(ctx context.Context, attemptID string) (debrief.Debrief, error) {
	if !isUUID(attemptID) {
		return debrief.Debrief{}, debrief.ErrNotFound
	}
	var row debriefRow
	if err := repo.db.GetContext(ctx, &row, selectQuery("debrief", debriefColumns)+" WHERE attempt_id = $1", attemptID); err != nil {
		return debrief.Debrief{}, trapNoRows(err, debrief.ErrNotFound, "getting debrief")
	}
	return debrief.Debrief{
		ID:           row.ID,
		AttemptID:    row.AttemptID,
		UserID:       row.UserID,
		Summary:      row.Summary,
		Strengths:    []string(row.Strengths),
		Improvements: []string(row.Improvements),
		Rating:       row.Rating,
		Model:        row.Model,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}

func (repo *debriefRepository) SaveDebrief(ctx context.Context, d debrief.Debrief) (debrief.Debrief, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	strengths, improvements := d.Strengths, d.Improvements
	if strengths == nil {
		strengths = []string{}
	}
	if improvements == nil {
		improvements = []string{}
	}

	q := upsertQuery("debrief", debriefColumns, []string{"attempt_id"}, "id") + " RETURNING id"
	err := repo.db.GetContext(ctx, &d.ID, q,
		d.ID, d.AttemptID, d.UserID, d.Summary, pq.StringArray(strengths), pq.StringArray(improvements),
		d.Rating, d.Model, d.CreatedAt.UTC())
	if err != nil {
		return debrief.Debrief{}, errors.Wrap(err, "saving debrief")
	}
	return d, nil
}
