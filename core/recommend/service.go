// Package recommend picks the next lesson a learner should take.
package recommend

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/user"
)

// Recommendation reasons, by rank.
const (
	ReasonResume   = "resume"
	ReasonContinue = "continue"
	ReasonStart    = "start"
	ReasonDiscover = "discover"
)

var ErrNoRecommendation = core.NewNotFoundError("no lesson to recommend")

type (
	// Curriculum is the part of the curriculum service the engine walks.
	Curriculum interface {
		ListPrograms(ctx context.Context, usr user.User, filter curriculum.ProgramFilter) ([]curriculum.Program, error)
		GetProgramByID(ctx context.Context, id string) (curriculum.Program, error)
		OrderedLessons(ctx context.Context, p curriculum.Program) ([]curriculum.Lesson, error)
		RawEnrollments(ctx context.Context, usr user.User) ([]curriculum.Enrollment, error)
		Enrollments(ctx context.Context, usr user.User) ([]curriculum.ProgramProgress, error)
		UserProgress(ctx context.Context, usr user.User) ([]curriculum.LessonProgress, error)
	}

	Recommendation struct {
		Reason  string             `json:"reason"`
		Program curriculum.Program `json:"program"`
		Lesson  curriculum.Lesson  `json:"lesson"`
	}

	Dashboard struct {
		Enrollments    []curriculum.ProgramProgress `json:"enrollments"`
		Recommendation *Recommendation              `json:"recommendation"`
	}

	Service struct {
		curriculum Curriculum
	}
)

func NewService(c Curriculum) *Service {
	return &Service{curriculum: c}
}

// state is what the heuristics rank on.
type state struct {
	enrollments []curriculum.Enrollment // most recently active first
	progress    []curriculum.LessonProgress
	byProgram   map[string][]curriculum.LessonProgress
}

func (svc *Service) load(ctx context.Context, usr user.User) (state, error) {
	var st state
	var err error
	if st.enrollments, err = svc.curriculum.RawEnrollments(ctx, usr); err != nil {
		return st, errors.Wrap(err, "loading enrollments")
	}
	if st.progress, err = svc.curriculum.UserProgress(ctx, usr); err != nil {
		return st, errors.Wrap(err, "loading progress")
	}
	st.byProgram = make(map[string][]curriculum.LessonProgress)
	for _, p := range st.progress {
		st.byProgram[p.ProgramID] = append(st.byProgram[p.ProgramID], p)
	}
	return st, nil
}

// Next returns the lesson usr should take next.
// The heuristics are tried in rank order: resume, continue, start, discover.
func (svc *Service) Next(ctx context.Context, usr user.User) (Recommendation, error) {
	st, err := svc.load(ctx, usr)
	if err != nil {
		return Recommendation{}, err
	}

	heuristics := []func(context.Context, user.User, state) (*Recommendation, error){
		svc.resume,
		svc.continueProgram,
		svc.start,
		svc.discover,
	}
	for _, h := range heuristics {
		rec, err := h(ctx, usr, st)
		if err != nil {
			return Recommendation{}, err
		}
		if rec != nil {
			return *rec, nil
		}
	}
	return Recommendation{}, ErrNoRecommendation
}

func incomplete(enrollments []curriculum.Enrollment) map[string]bool {
	res := make(map[string]bool, len(enrollments))
	for _, e := range enrollments {
		if !e.IsCompleted() {
			res[e.ProgramID] = true
		}
	}
	return res
}

// program loads a program with its ordered lessons. A nil program means it can't be recommended.
func (svc *Service) program(ctx context.Context, id string) (*curriculum.Program, []curriculum.Lesson, error) {
	p, err := svc.curriculum.GetProgramByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "getting program")
	}
	if !p.IsPublished {
		return nil, nil, nil
	}
	lessons, err := svc.curriculum.OrderedLessons(ctx, p)
	if err != nil {
		return nil, nil, errors.Wrap(err, "ordering lessons")
	}
	if len(lessons) == 0 {
		return nil, nil, nil
	}
	return &p, lessons, nil
}

// resume: the most recently updated in-progress lesson of an incomplete enrollment.
func (svc *Service) resume(ctx context.Context, _ user.User, st state) (*Recommendation, error) {
	open := incomplete(st.enrollments)
	candidates := make([]curriculum.LessonProgress, 0, len(st.progress))
	for _, p := range st.progress {
		if p.Status == curriculum.StatusInProgress && open[p.ProgramID] {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt)
	})

	for _, c := range candidates {
		p, lessons, err := svc.program(ctx, c.ProgramID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		for _, l := range lessons {
			if l.ID == c.LessonID {
				return &Recommendation{Reason: ReasonResume, Program: *p, Lesson: l.Summary()}, nil
			}
		}
	}
	return nil, nil
}

// continueProgram: the first lesson not completed in the most recently active incomplete
// enrollment that has progress.
func (svc *Service) continueProgram(ctx context.Context, _ user.User, st state) (*Recommendation, error) {
	for _, e := range st.enrollments {
		if e.IsCompleted() || len(st.byProgram[e.ProgramID]) == 0 {
			continue
		}
		p, lessons, err := svc.program(ctx, e.ProgramID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		completed := make(map[string]bool)
		for _, lp := range st.byProgram[e.ProgramID] {
			if lp.Status == curriculum.StatusCompleted {
				completed[lp.LessonID] = true
			}
		}
		for _, l := range lessons {
			if !completed[l.ID] {
				return &Recommendation{Reason: ReasonContinue, Program: *p, Lesson: l.Summary()}, nil
			}
		}
	}
	return nil, nil
}

// start: the first lesson of the oldest incomplete enrollment without progress.
func (svc *Service) start(ctx context.Context, _ user.User, st state) (*Recommendation, error) {
	fresh := make([]curriculum.Enrollment, 0, len(st.enrollments))
	for _, e := range st.enrollments {
		if !e.IsCompleted() && len(st.byProgram[e.ProgramID]) == 0 {
			fresh = append(fresh, e)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].EnrolledAt.Before(fresh[j].EnrolledAt) })

	for _, e := range fresh {
		p, lessons, err := svc.program(ctx, e.ProgramID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return &Recommendation{Reason: ReasonStart, Program: *p, Lesson: lessons[0].Summary()}, nil
		}
	}
	return nil, nil
}

// discover: the first lesson of a published program usr is not enrolled in,
// featured programs first.
func (svc *Service) discover(ctx context.Context, usr user.User, st state) (*Recommendation, error) {
	programs, err := svc.curriculum.ListPrograms(ctx, usr, curriculum.ProgramFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "listing programs")
	}
	enrolled := make(map[string]bool, len(st.enrollments))
	for _, e := range st.enrollments {
		enrolled[e.ProgramID] = true
	}
	sort.SliceStable(programs, func(i, j int) bool {
		if programs[i].IsFeatured != programs[j].IsFeatured {
			return programs[i].IsFeatured
		}
		if programs[i].Position != programs[j].Position {
			return programs[i].Position < programs[j].Position
		}
		return programs[i].Slug < programs[j].Slug
	})

	for _, candidate := range programs {
		if enrolled[candidate.ID] || !candidate.IsPublished {
			continue
		}
		lessons, err := svc.curriculum.OrderedLessons(ctx, candidate)
		if err != nil {
			return nil, errors.Wrap(err, "ordering lessons")
		}
		if len(lessons) > 0 {
			return &Recommendation{Reason: ReasonDiscover, Program: candidate, Lesson: lessons[0].Summary()}, nil
		}
	}
	return nil, nil
}

// Dashboard loads the enrollments of usr and their next lesson concurrently.
func (svc *Service) Dashboard(ctx context.Context, usr user.User) (Dashboard, error) {
	var dash Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		enrollments, err := svc.curriculum.Enrollments(gctx, usr)
		if err != nil {
			return errors.Wrap(err, "loading enrollments")
		}
		dash.Enrollments = enrollments
		return nil
	})
	g.Go(func() error {
		rec, err := svc.Next(gctx, usr)
		if err != nil {
			if errors.Cause(err) == ErrNoRecommendation {
				return nil
			}
			return errors.Wrap(err, "recommending")
		}
		dash.Recommendation = &rec
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	if dash.Enrollments == nil {
		dash.Enrollments = []curriculum.ProgramProgress{}
	}
	return dash, nil
}
