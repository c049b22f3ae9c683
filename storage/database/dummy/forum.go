package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/kiongozi/core/forum"
)

type forumRepository struct {
	db *forumTables
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *DB) forum.Repository {
	return &forumRepository{db: db.forum}
}

func (t *forumTables) ensure() {
	if t.threads == nil {
		t.threads = make(map[string]*forum.Thread)
		t.posts = make(map[string]*forum.Post)
	}
}

func (repo *forumRepository) QueryThreads(_ context.Context, filter forum.ThreadFilter) ([]forum.Thread, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	threads := make([]forum.Thread, 0)
	for _, t := range repo.db.threads {
		if filter.ProgramID != "" && t.ProgramID != filter.ProgramID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) && !strings.Contains(strings.ToLower(t.Body), search) {
			continue
		}
		threads = append(threads, *t)
	}
	sort.SliceStable(threads, func(i, j int) bool {
		if threads[i].IsPinned != threads[j].IsPinned {
			return threads[i].IsPinned
		}
		if !threads[i].LastPostAt.Equal(threads[j].LastPostAt) {
			return threads[i].LastPostAt.After(threads[j].LastPostAt)
		}
		return threads[i].ID < threads[j].ID
	})

	count := len(threads)
	start := filter.Offset()
	if start > count {
		start = count
	}
	end := start + filter.PerPage
	if end > count {
		end = count
	}
	return threads[start:end], count, nil
}

func (repo *forumRepository) GetThread(_ context.Context, id string) (forum.Thread, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.threads[id]; ok {
		return *t, nil
	}
	return forum.Thread{}, forum.ErrThreadNotFound
}

func (repo *forumRepository) CreateThread(_ context.Context, t forum.Thread) (forum.Thread, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	t.ID = uuid.New().String()
	repo.db.threads[t.ID] = &t
	return t, nil
}

func (repo *forumRepository) UpdateThread(_ context.Context, t forum.Thread) (forum.Thread, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.threads[t.ID]; !ok {
		return forum.Thread{}, forum.ErrThreadNotFound
	}
	repo.db.threads[t.ID] = &t
	return t, nil
}

func (repo *forumRepository) QueryPosts(_ context.Context, threadID string) ([]forum.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	posts := make([]forum.Post, 0)
	for _, p := range repo.db.posts {
		if p.ThreadID == threadID {
			posts = append(posts, *p)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts, nil
}

func (repo *forumRepository) GetPost(_ context.Context, id string) (forum.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.posts[id]; ok {
		return *p, nil
	}
	return forum.Post{}, forum.ErrPostNotFound
}

func (repo *forumRepository) AddPost(_ context.Context, p forum.Post) (forum.Post, forum.Thread, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	t, ok := repo.db.threads[p.ThreadID]
	if !ok {
		return forum.Post{}, forum.Thread{}, forum.ErrThreadNotFound
	}
	p.ID = uuid.New().String()
	repo.db.posts[p.ID] = &p
	t.ReplyCount++
	t.LastPostAt = p.CreatedAt
	return p, *t, nil
}

func (repo *forumRepository) UpdatePost(_ context.Context, p forum.Post) (forum.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.posts[p.ID]; !ok {
		return forum.Post{}, forum.ErrPostNotFound
	}
	repo.db.posts[p.ID] = &p
	return p, nil
}
