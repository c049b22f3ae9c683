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

	"github.com/trezcool/kiongozi/core/forum"
)

var (
	threadColumns = []string{
		"id", "program_id", "author_id", "title", "body", "is_pinned", "is_locked", "reply_count", "last_post_at",
		"created_at", "updated_at",
	}
	postColumns = []string{"id", "thread_id", "author_id", "body", "is_deleted", "created_at", "updated_at"}
)

type (
	threadRow struct {
		ID         string      `db:"id"`
		ProgramID  null.String `db:"program_id"`
		AuthorID   string      `db:"author_id"`
		Title      string      `db:"title"`
		Body       string      `db:"body"`
		IsPinned   bool        `db:"is_pinned"`
		IsLocked   bool        `db:"is_locked"`
		ReplyCount int         `db:"reply_count"`
		LastPostAt time.Time   `db:"last_post_at"`
		CreatedAt  time.Time   `db:"created_at"`
		UpdatedAt  time.Time   `db:"updated_at"`
	}

	postRow struct {
		ID        string    `db:"id"`
		ThreadID  string    `db:"thread_id"`
		AuthorID  string    `db:"author_id"`
		Body      string    `db:"body"`
		IsDeleted bool      `db:"is_deleted"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

func (r threadRow) thread() forum.Thread {
	return forum.Thread{
		ID: r.ID, ProgramID: r.ProgramID.String, AuthorID: r.AuthorID, Title: r.Title, Body: r.Body,
		IsPinned: r.IsPinned, IsLocked: r.IsLocked, ReplyCount: r.ReplyCount, LastPostAt: r.LastPostAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r postRow) post() forum.Post {
	return forum.Post{
		ID: r.ID, ThreadID: r.ThreadID, AuthorID: r.AuthorID, Body: r.Body, IsDeleted: r.IsDeleted,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func threadValues(t forum.Thread) []interface{} {
	return []interface{}{
		t.ID, nullableUUID(t.ProgramID), t.AuthorID, t.Title, t.Body, t.IsPinned, t.IsLocked, t.ReplyCount,
		t.LastPostAt.UTC(), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	}
}

func postValues(p forum.Post) []interface{} {
	return []interface{}{p.ID, p.ThreadID, p.AuthorID, p.Body, p.IsDeleted, p.CreatedAt.UTC(), p.UpdatedAt.UTC()}
}

type forumRepository struct {
	db *sqlx.DB
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *sqlx.DB) forum.Repository {
	return &forumRepository{db: db}
}

func (repo *forumRepository) QueryThreads(ctx context.Context, filter forum.ThreadFilter) ([]forum.Thread, int, error) {
	var where []string
	var args []interface{}
	if filter.ProgramID != "" {
		if !isUUID(filter.ProgramID) {
			return []forum.Thread{}, 0, nil
		}
		args = append(args, filter.ProgramID)
		where = append(where, "program_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(title ILIKE $"+n+" OR body ILIKE $"+n+")")
	}
	var cond string
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM thread"+cond, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting threads")
	}

	n := len(args)
	q := selectQuery("thread", threadColumns) + cond +
		" ORDER BY is_pinned DESC, last_post_at DESC, id" +
		" LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	args = append(args, filter.PerPage, filter.Offset())

	var rows []threadRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying threads")
	}
	threads := make([]forum.Thread, 0, len(rows))
	for _, r := range rows {
		threads = append(threads, r.thread())
	}
	return threads, count, nil
}

func getThread(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (forum.Thread, error) {
	if !isUUID(id) {
		return forum.Thread{}, forum.ErrThreadNotFound
	}
	query := selectQuery("thread", threadColumns) + " WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	var row threadRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return forum.Thread{}, trapNoRows(err, forum.ErrThreadNotFound, "getting thread")
	}
	return row.thread(), nil
}

func (repo *forumRepository) GetThread(ctx context.Context, id string) (forum.Thread, error) {
	return getThread(ctx, repo.db, id, false)
}

func (repo *forumRepository) CreateThread(ctx context.Context, t forum.Thread) (forum.Thread, error) {
	t.ID = uuid.New().String()
	if _, err := repo.db.ExecContext(ctx, insertQuery("thread", threadColumns), threadValues(t)...); err != nil {
		return forum.Thread{}, errors.Wrap(err, "inserting thread")
	}
	return t, nil
}

func (repo *forumRepository) UpdateThread(ctx context.Context, t forum.Thread) (forum.Thread, error) {
	if !isUUID(t.ID) {
		return forum.Thread{}, forum.ErrThreadNotFound
	}
	vals := threadValues(t)
	res, err := repo.db.ExecContext(ctx, updateQuery("thread", threadColumns[1:]), append(vals[1:], t.ID)...)
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "updating thread")
	}
	if err = requireAffected(res, forum.ErrThreadNotFound, "updating thread"); err != nil {
		return forum.Thread{}, err
	}
	return t, nil
}

func (repo *forumRepository) QueryPosts(ctx context.Context, threadID string) ([]forum.Post, error) {
	if !isUUID(threadID) {
		return []forum.Post{}, nil
	}
	var rows []postRow
	q := selectQuery("post", postColumns) + " WHERE thread_id = $1 ORDER BY created_at, id"
	if err := repo.db.SelectContext(ctx, &rows, q, threadID); err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	posts := make([]forum.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.post())
	}
	return posts, nil
}

func (repo *forumRepository) GetPost(ctx context.Context, id string) (forum.Post, error) {
	if !isUUID(id) {
		return forum.Post{}, forum.ErrPostNotFound
	}
	var row postRow
	if err := repo.db.GetContext(ctx, &row, selectQuery("post", postColumns)+" WHERE id = $1", id); err != nil {
		return forum.Post{}, trapNoRows(err, forum.ErrPostNotFound, "getting post")
	}
	return row.post(), nil
}

func (repo *forumRepository) AddPost(ctx context.Context, p forum.Post) (forum.Post, forum.Thread, error) {
	var t forum.Thread
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if t, err = getThread(ctx, tx, p.ThreadID, true); err != nil {
			return err
		}
		p.ID = uuid.New().String()
		if _, err = tx.ExecContext(ctx, insertQuery("post", postColumns), postValues(p)...); err != nil {
			return errors.Wrap(err, "inserting post")
		}
		t.ReplyCount++
		t.LastPostAt = p.CreatedAt.UTC()
		_, err = tx.ExecContext(ctx, "UPDATE thread SET reply_count = $1, last_post_at = $2 WHERE id = $3",
			t.ReplyCount, t.LastPostAt, t.ID)
		return errors.Wrap(err, "bumping thread")
	})
	if err != nil {
		return forum.Post{}, forum.Thread{}, err
	}
	return p, t, nil
}

func (repo *forumRepository) UpdatePost(ctx context.Context, p forum.Post) (forum.Post, error) {
	if !isUUID(p.ID) {
		return forum.Post{}, forum.ErrPostNotFound
	}
	vals := postValues(p)
	res, err := repo.db.ExecContext(ctx, updateQuery("post", postColumns[1:]), append(vals[1:], p.ID)...)
	if err != nil {
		return forum.Post{}, errors.Wrap(err, "updating post")
	}
	if err = requireAffected(res, forum.ErrPostNotFound, "updating post"); err != nil {
		return forum.Post{}, err
	}
	return p, nil
}
