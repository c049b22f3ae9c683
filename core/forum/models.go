package forum

import (
	"time"

	"github.com/trezcool/kiongozi/core"
)

const deletedBody = "[deleted]"

type Thread struct {
	ID         string    `json:"id"`
	ProgramID  string    `json:"program_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	IsPinned   bool      `json:"is_pinned"`
	IsLocked   bool      `json:"is_locked"`
	ReplyCount int       `json:"reply_count"`
	LastPostAt time.Time `json:"last_post_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Post struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public hides the body of deleted posts.
func (p Post) Public() Post {
	if p.IsDeleted {
		p.Body = deletedBody
	}
	return p
}

type ThreadView struct {
	Thread
	Posts []Post `json:"posts"`
}

type ThreadFilter struct {
	ProgramID string
	Search    string
	core.Pagination
}

type ThreadPage struct {
	Threads []Thread `json:"results"`
	Count   int      `json:"count"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

type NewThread struct {
	ProgramID string `json:"program_id"`
	Title     string `json:"title" validate:"notblank,max=200"`
	Body      string `json:"body" validate:"notblank,max=20000"`
}

type NewPost struct {
	Body string `json:"body" validate:"notblank,max=20000"`
}

// Moderation sets the flags of a thread. Nil fields are left untouched.
type Moderation struct {
	Pin  *bool `json:"pin"`
	Lock *bool `json:"lock"`
}
