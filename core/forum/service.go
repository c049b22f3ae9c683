package forum

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/user"
)

var (
	// errors
	ErrThreadNotFound = core.NewNotFoundError("thread not found")
	ErrPostNotFound   = core.NewNotFoundError("post not found")
	ErrThreadLocked   = core.NewConflictError("thread is locked")
	ErrPostDeleted    = core.NewConflictError("post is deleted")
	errUnknownProgram = "unknown program"
)

const excerptLen = 200

type (
	Repository interface {
		// QueryThreads returns the page of threads matching filter, pinned first then most recently active,
		// and the total count of matching threads.
		QueryThreads(ctx context.Context, filter ThreadFilter) ([]Thread, int, error)
		GetThread(ctx context.Context, id string) (Thread, error)
		CreateThread(ctx context.Context, t Thread) (Thread, error)
		UpdateThread(ctx context.Context, t Thread) (Thread, error)
		// QueryPosts returns the posts of a thread, oldest first.
		QueryPosts(ctx context.Context, threadID string) ([]Post, error)
		GetPost(ctx context.Context, id string) (Post, error)
		// AddPost saves a reply and bumps the ReplyCount and LastPostAt of its thread atomically.
		AddPost(ctx context.Context, p Post) (Post, Thread, error)
		UpdatePost(ctx context.Context, p Post) (Post, error)
	}

	// Users resolves post authors for notifications.
	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Programs resolves the program a thread is attached to.
	Programs interface {
		GetProgramByID(ctx context.Context, id string) (curriculum.Program, error)
	}

	Service struct {
		repo     Repository
		users    Users
		programs Programs
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	users Users,
	programs Programs,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{repo: repo, users: users, programs: programs, mailSvc: mailSvc, validate: validate, logger: logger}
}

func (svc *Service) ListThreads(ctx context.Context, filter ThreadFilter) (ThreadPage, error) {
	filter.Search = core.CleanString(filter.Search)
	filter.Pagination.Clean()
	threads, count, err := svc.repo.QueryThreads(ctx, filter)
	if err != nil {
		return ThreadPage{}, errors.Wrap(err, "querying threads")
	}
	if threads == nil {
		threads = []Thread{}
	}
	return ThreadPage{Threads: threads, Count: count, Page: filter.Page, PerPage: filter.PerPage}, nil
}

// GetThread returns a thread with its posts. Deleted posts keep their place with a blanked body.
func (svc *Service) GetThread(ctx context.Context, id string) (ThreadView, error) {
	t, err := svc.repo.GetThread(ctx, id)
	if err != nil {
		return ThreadView{}, err
	}
	posts, err := svc.repo.QueryPosts(ctx, t.ID)
	if err != nil {
		return ThreadView{}, errors.Wrap(err, "querying posts")
	}
	view := ThreadView{Thread: t, Posts: make([]Post, 0, len(posts))}
	for _, p := range posts {
		view.Posts = append(view.Posts, p.Public())
	}
	return view, nil
}

func (svc *Service) CreateThread(ctx context.Context, usr user.User, nt NewThread) (Thread, error) {
	nt.Title = core.CleanString(nt.Title)
	nt.Body = core.CleanString(nt.Body)
	if err := svc.validate.Struct(nt); err != nil {
		return Thread{}, err
	}
	if nt.ProgramID = core.CleanString(nt.ProgramID); nt.ProgramID != "" {
		p, err := svc.programs.GetProgramByID(ctx, nt.ProgramID)
		switch {
		case core.IsNotFound(err):
			return Thread{}, core.NewFieldError("program_id", errUnknownProgram)
		case err != nil:
			return Thread{}, errors.Wrap(err, "getting program")
		case !p.IsPublished && !usr.IsAdmin():
			return Thread{}, core.NewFieldError("program_id", errUnknownProgram)
		}
	}

	now := time.Now().UTC()
	t, err := svc.repo.CreateThread(ctx, Thread{
		ProgramID:  nt.ProgramID,
		AuthorID:   usr.ID,
		Title:      nt.Title,
		Body:       nt.Body,
		LastPostAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return t, errors.Wrap(err, "creating thread")
}

// Reply posts to a thread. Locked threads only accept replies from moderators.
// The thread author is notified unless they are the one replying.
func (svc *Service) Reply(ctx context.Context, usr user.User, threadID string, np NewPost) (Post, error) {
	np.Body = core.CleanString(np.Body)
	if err := svc.validate.Struct(np); err != nil {
		return Post{}, err
	}

	t, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return Post{}, err
	}
	if t.IsLocked && !usr.IsModerator() {
		return Post{}, ErrThreadLocked
	}

	now := time.Now().UTC()
	p, t, err := svc.repo.AddPost(ctx, Post{
		ThreadID:  t.ID,
		AuthorID:  usr.ID,
		Body:      np.Body,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Post{}, errors.Wrap(err, "adding post")
	}

	if t.AuthorID != usr.ID {
		svc.notifyAuthor(ctx, usr, t, p)
	}
	return p, nil
}

func (svc *Service) notifyAuthor(ctx context.Context, replier user.User, t Thread, p Post) {
	author, err := svc.users.GetByID(ctx, t.AuthorID)
	if err != nil {
		svc.logger.Warn("forum.Reply: thread author: "+err.Error(), t.ID)
		return
	}
	if !author.IsActive || author.Email == "" {
		return
	}

	excerpt := []rune(p.Body)
	if len(excerpt) > excerptLen {
		excerpt = append(excerpt[:excerptLen], '…')
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: author.DisplayName(), Address: author.Email}},
		Subject:      "New reply: " + t.Title,
		TemplateName: "forum_reply",
		TemplateData: map[string]string{
			"Name":        author.DisplayName(),
			"ReplierName": replier.DisplayName(),
			"ThreadTitle": t.Title,
			"ThreadID":    t.ID,
			"Excerpt":     string(excerpt),
		},
	})
}

// EditPost changes the body of a post. Only its author may edit it.
func (svc *Service) EditPost(ctx context.Context, usr user.User, postID string, np NewPost) (Post, error) {
	np.Body = core.CleanString(np.Body)
	if err := svc.validate.Struct(np); err != nil {
		return Post{}, err
	}

	p, err := svc.repo.GetPost(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != usr.ID {
		return Post{}, core.ErrPermissionDenied
	}
	if p.IsDeleted {
		return Post{}, ErrPostDeleted
	}
	p.Body = np.Body
	p.UpdatedAt = time.Now().UTC()
	p, err = svc.repo.UpdatePost(ctx, p)
	return p, errors.Wrap(err, "updating post")
}

// DeletePost soft deletes a post. Its author and moderators may delete it.
func (svc *Service) DeletePost(ctx context.Context, usr user.User, postID string) error {
	p, err := svc.repo.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != usr.ID && !usr.IsModerator() {
		return core.ErrPermissionDenied
	}
	if p.IsDeleted {
		return nil
	}
	p.IsDeleted = true
	p.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdatePost(ctx, p)
	return errors.Wrap(err, "deleting post")
}

// Moderate pins or locks a thread. Only moderators may do so.
func (svc *Service) Moderate(ctx context.Context, usr user.User, threadID string, m Moderation) (Thread, error) {
	if !usr.IsModerator() {
		return Thread{}, core.ErrPermissionDenied
	}
	t, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	if m.Pin != nil {
		t.IsPinned = *m.Pin
	}
	if m.Lock != nil {
		t.IsLocked = *m.Lock
	}
	t.UpdatedAt = time.Now().UTC()
	t, err = svc.repo.UpdateThread(ctx, t)
	return t, errors.Wrap(err, "updating thread")
}
