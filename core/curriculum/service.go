package curriculum

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/user"
)

var (
	// errors
	ErrProgramNotFound    = core.NewNotFoundError("program not found")
	ErrLessonNotFound     = core.NewNotFoundError("lesson not found")
	ErrEnrollmentNotFound = core.NewNotFoundError("enrollment not found")
	ErrProgressNotFound   = core.NewNotFoundError("progress not found")
	ErrNotEnrolled        = core.NewConflictError("not enrolled in this program")
	ErrPremiumRequired    = core.NewPermissionError("an active subscription is required for this program")
)

type (
	Repository interface {
		QueryPrograms(ctx context.Context, filter ProgramFilter) ([]Program, error)
		GetProgram(ctx context.Context, filter ProgramGetFilter) (Program, error)
		// SaveProgram inserts or updates a Program by Slug.
		SaveProgram(ctx context.Context, p Program) (Program, error)
		QueryModules(ctx context.Context, programID string) ([]Module, error)
		// SaveModule inserts or updates a Module by (ProgramID, Slug).
		SaveModule(ctx context.Context, m Module) (Module, error)
		QueryLessons(ctx context.Context, programID string) ([]Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		// SaveLesson inserts or updates a Lesson by (ProgramID, Slug).
		SaveLesson(ctx context.Context, l Lesson) (Lesson, error)

		GetEnrollment(ctx context.Context, userID, programID string) (Enrollment, error)
		QueryEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		SaveEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)

		GetProgress(ctx context.Context, userID, lessonID string) (LessonProgress, error)
		// QueryProgress returns the progress of a user, for one program when programID is set.
		QueryProgress(ctx context.Context, userID, programID string) ([]LessonProgress, error)
		SaveProgress(ctx context.Context, p LessonProgress) (LessonProgress, error)
	}

	// Entitlements tells whether a user may access premium content.
	Entitlements interface {
		HasAccess(ctx context.Context, usr user.User) (bool, error)
	}

	Service struct {
		repo         Repository
		entitlements Entitlements
	}
)

func NewService(repo Repository, entitlements Entitlements) *Service {
	return &Service{repo: repo, entitlements: entitlements}
}

func canSeeUnpublished(usr user.User) bool {
	return usr.IsAdmin()
}

// ListPrograms lists the catalogue. Unpublished programs are only listed for admins.
func (svc *Service) ListPrograms(ctx context.Context, usr user.User, filter ProgramFilter) ([]Program, error) {
	filter.Search = core.CleanString(filter.Search)
	filter.Level = core.CleanString(filter.Level, true /* lower */)
	if !canSeeUnpublished(usr) {
		filter.IncludeUnpublished = false
	}
	programs, err := svc.repo.QueryPrograms(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	SortPrograms(programs)
	return programs, nil
}

// GetProgram returns a program visible to usr.
func (svc *Service) GetProgram(ctx context.Context, usr user.User, slug string) (Program, error) {
	p, err := svc.repo.GetProgram(ctx, ProgramGetFilter{Slug: core.CleanString(slug, true /* lower */)})
	if err != nil {
		return Program{}, err
	}
	if !p.IsPublished && !canSeeUnpublished(usr) {
		return Program{}, ErrProgramNotFound
	}
	return p, nil
}

func (svc *Service) GetProgramByID(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgram(ctx, ProgramGetFilter{ID: id})
}

// GetOutline returns the program with its modules and ordered lesson summaries.
func (svc *Service) GetOutline(ctx context.Context, usr user.User, slug string) (Outline, error) {
	p, err := svc.GetProgram(ctx, usr, slug)
	if err != nil {
		return Outline{}, err
	}
	return svc.outline(ctx, p)
}

func (svc *Service) outline(ctx context.Context, p Program) (Outline, error) {
	modules, err := svc.repo.QueryModules(ctx, p.ID)
	if err != nil {
		return Outline{}, errors.Wrap(err, "querying modules")
	}
	lessons, err := svc.repo.QueryLessons(ctx, p.ID)
	if err != nil {
		return Outline{}, errors.Wrap(err, "querying lessons")
	}
	return BuildOutline(p, modules, lessons), nil
}

// OrderedLessons returns the lessons of a program in reading order.
func (svc *Service) OrderedLessons(ctx context.Context, p Program) ([]Lesson, error) {
	outline, err := svc.outline(ctx, p)
	if err != nil {
		return nil, err
	}
	return outline.Lessons(), nil
}

// checkPremium returns ErrPremiumRequired when p is premium and usr has no entitlement.
// Admins always have access.
func (svc *Service) checkPremium(ctx context.Context, usr user.User, p Program) error {
	if !p.IsPremium || usr.IsAdmin() {
		return nil
	}
	ok, err := svc.entitlements.HasAccess(ctx, usr)
	if err != nil {
		return errors.Wrap(err, "checking entitlements")
	}
	if !ok {
		return ErrPremiumRequired
	}
	return nil
}

// GetLesson returns a lesson with its contents.
// Premium lessons require an enrollment and a current entitlement.
func (svc *Service) GetLesson(ctx context.Context, usr user.User, programSlug, lessonSlug string) (Lesson, error) {
	p, err := svc.GetProgram(ctx, usr, programSlug)
	if err != nil {
		return Lesson{}, err
	}
	lessons, err := svc.repo.QueryLessons(ctx, p.ID)
	if err != nil {
		return Lesson{}, errors.Wrap(err, "querying lessons")
	}
	lessonSlug = core.CleanString(lessonSlug, true /* lower */)
	for _, l := range lessons {
		if l.Slug != lessonSlug {
			continue
		}
		if p.IsPremium && !usr.IsAdmin() {
			if _, err := svc.repo.GetEnrollment(ctx, usr.ID, p.ID); err != nil {
				if errors.Cause(err) == ErrEnrollmentNotFound {
					return Lesson{}, ErrNotEnrolled
				}
				return Lesson{}, errors.Wrap(err, "getting enrollment")
			}
			if err := svc.checkPremium(ctx, usr, p); err != nil {
				return Lesson{}, err
			}
		}
		return l, nil
	}
	return Lesson{}, ErrLessonNotFound
}

// Enroll enrolls usr in a program. Enrolling twice returns the existing Enrollment.
func (svc *Service) Enroll(ctx context.Context, usr user.User, programSlug string) (Enrollment, bool, error) {
	p, err := svc.GetProgram(ctx, usr, programSlug)
	if err != nil {
		return Enrollment{}, false, err
	}

	if e, err := svc.repo.GetEnrollment(ctx, usr.ID, p.ID); err == nil {
		return e, false, nil
	} else if errors.Cause(err) != ErrEnrollmentNotFound {
		return Enrollment{}, false, errors.Wrap(err, "getting enrollment")
	}

	if err := svc.checkPremium(ctx, usr, p); err != nil {
		return Enrollment{}, false, err
	}

	now := time.Now().UTC()
	e, err := svc.repo.SaveEnrollment(ctx, Enrollment{
		UserID:         usr.ID,
		ProgramID:      p.ID,
		EnrolledAt:     now,
		LastActivityAt: now,
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "saving enrollment")
	}
	return e, true, nil
}

// RecordProgress records the progress of usr on a lesson.
// Completed lessons stay completed. Completing every lesson completes the Enrollment.
func (svc *Service) RecordProgress(ctx context.Context, usr user.User, lessonID, status string) (LessonProgress, error) {
	lesson, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return LessonProgress{}, err
	}
	enrollment, err := svc.repo.GetEnrollment(ctx, usr.ID, lesson.ProgramID)
	if err != nil {
		if errors.Cause(err) == ErrEnrollmentNotFound {
			return LessonProgress{}, ErrNotEnrolled
		}
		return LessonProgress{}, errors.Wrap(err, "getting enrollment")
	}
	p, err := svc.repo.GetProgram(ctx, ProgramGetFilter{ID: lesson.ProgramID})
	if err != nil {
		return LessonProgress{}, errors.Wrap(err, "getting program")
	}
	if err := svc.checkPremium(ctx, usr, p); err != nil {
		return LessonProgress{}, err
	}

	now := time.Now().UTC()
	progress, err := svc.repo.GetProgress(ctx, usr.ID, lesson.ID)
	switch {
	case err == nil:
	case errors.Cause(err) == ErrProgressNotFound:
		progress = LessonProgress{
			UserID:    usr.ID,
			LessonID:  lesson.ID,
			ProgramID: lesson.ProgramID,
			Status:    StatusInProgress,
			StartedAt: now,
		}
	default:
		return LessonProgress{}, errors.Wrap(err, "getting progress")
	}

	if status == StatusCompleted && progress.Status != StatusCompleted {
		progress.Status = StatusCompleted
		progress.CompletedAt = &now
	}
	progress.UpdatedAt = now
	if progress, err = svc.repo.SaveProgress(ctx, progress); err != nil {
		return LessonProgress{}, errors.Wrap(err, "saving progress")
	}

	enrollment.LastActivityAt = now
	if !enrollment.IsCompleted() {
		pp, err := svc.programProgress(ctx, usr.ID, lesson.ProgramID)
		if err != nil {
			return LessonProgress{}, err
		}
		if pp.TotalLessons > 0 && pp.CompletedLessons == pp.TotalLessons {
			enrollment.CompletedAt = &now
		}
	}
	if _, err = svc.repo.SaveEnrollment(ctx, enrollment); err != nil {
		return LessonProgress{}, errors.Wrap(err, "saving enrollment")
	}
	return progress, nil
}

type progressCount struct {
	TotalLessons     int
	CompletedLessons int
}

func (svc *Service) programProgress(ctx context.Context, userID, programID string) (progressCount, error) {
	lessons, err := svc.repo.QueryLessons(ctx, programID)
	if err != nil {
		return progressCount{}, errors.Wrap(err, "querying lessons")
	}
	progress, err := svc.repo.QueryProgress(ctx, userID, programID)
	if err != nil {
		return progressCount{}, errors.Wrap(err, "querying progress")
	}

	existing := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		existing[l.ID] = true
	}
	pc := progressCount{TotalLessons: len(lessons)}
	for _, p := range progress {
		if p.Status == StatusCompleted && existing[p.LessonID] {
			pc.CompletedLessons++
		}
	}
	return pc, nil
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}

// Progress returns the progress of usr in a program.
func (svc *Service) Progress(ctx context.Context, usr user.User, programSlug string) (ProgramProgress, error) {
	p, err := svc.GetProgram(ctx, usr, programSlug)
	if err != nil {
		return ProgramProgress{}, err
	}
	return svc.progressFor(ctx, usr, p)
}

func (svc *Service) progressFor(ctx context.Context, usr user.User, p Program) (ProgramProgress, error) {
	pp := ProgramProgress{Program: p}
	if e, err := svc.repo.GetEnrollment(ctx, usr.ID, p.ID); err == nil {
		pp.Enrollment = &e
	} else if errors.Cause(err) != ErrEnrollmentNotFound {
		return ProgramProgress{}, errors.Wrap(err, "getting enrollment")
	}

	pc, err := svc.programProgress(ctx, usr.ID, p.ID)
	if err != nil {
		return ProgramProgress{}, err
	}
	pp.TotalLessons = pc.TotalLessons
	pp.CompletedLessons = pc.CompletedLessons
	pp.Percent = percent(pc.CompletedLessons, pc.TotalLessons)
	return pp, nil
}

// Enrollments returns the progress of usr in every program they are enrolled in,
// most recently active first.
func (svc *Service) Enrollments(ctx context.Context, usr user.User) ([]ProgramProgress, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	SortEnrollments(enrollments)

	res := make([]ProgramProgress, 0, len(enrollments))
	for _, e := range enrollments {
		p, err := svc.repo.GetProgram(ctx, ProgramGetFilter{ID: e.ProgramID})
		if err != nil {
			if errors.Cause(err) == ErrProgramNotFound {
				continue
			}
			return nil, errors.Wrap(err, "getting program")
		}
		pp, err := svc.progressFor(ctx, usr, p)
		if err != nil {
			return nil, err
		}
		res = append(res, pp)
	}
	return res, nil
}

// RawEnrollments returns the enrollments of usr, most recently active first.
func (svc *Service) RawEnrollments(ctx context.Context, usr user.User) ([]Enrollment, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	SortEnrollments(enrollments)
	return enrollments, nil
}

// UserProgress returns the lesson progress of usr across programs.
func (svc *Service) UserProgress(ctx context.Context, usr user.User) ([]LessonProgress, error) {
	progress, err := svc.repo.QueryProgress(ctx, usr.ID, "")
	return progress, errors.Wrap(err, "querying progress")
}
