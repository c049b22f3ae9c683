package dummydb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/kiongozi/core/curriculum"
)

type curriculumRepository struct {
	db *curriculumTables
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *DB) curriculum.Repository {
	return &curriculumRepository{db: db.curriculum}
}

func (t *curriculumTables) ensure() {
	if t.programs == nil {
		t.programs = make(map[string]*curriculum.Program)
		t.modules = make(map[string]*curriculum.Module)
		t.lessons = make(map[string]*curriculum.Lesson)
		t.enrollments = make(map[[2]string]*curriculum.Enrollment)
		t.progress = make(map[[2]string]*curriculum.LessonProgress)
	}
}

func (repo *curriculumRepository) QueryPrograms(_ context.Context, filter curriculum.ProgramFilter) ([]curriculum.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	programs := make([]curriculum.Program, 0, len(repo.db.programs))
	for _, p := range repo.db.programs {
		if !p.IsPublished && !filter.IncludeUnpublished {
			continue
		}
		if filter.Level != "" && p.Level != filter.Level {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) && !strings.Contains(strings.ToLower(p.Summary), search) {
			continue
		}
		programs = append(programs, *p)
	}
	curriculum.SortPrograms(programs)
	return programs, nil
}

func (repo *curriculumRepository) GetProgram(_ context.Context, filter curriculum.ProgramGetFilter) (curriculum.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.programs[filter.ID]; ok {
			return *p, nil
		}
		return curriculum.Program{}, curriculum.ErrProgramNotFound
	}
	for _, p := range repo.db.programs {
		if filter.Slug != "" && p.Slug == filter.Slug {
			return *p, nil
		}
	}
	return curriculum.Program{}, curriculum.ErrProgramNotFound
}

func (repo *curriculumRepository) SaveProgram(_ context.Context, p curriculum.Program) (curriculum.Program, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	for _, existing := range repo.db.programs {
		if existing.Slug == p.Slug {
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
			break
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	repo.db.programs[p.ID] = &p
	return p, nil
}

func (repo *curriculumRepository) QueryModules(_ context.Context, programID string) ([]curriculum.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	modules := make([]curriculum.Module, 0)
	for _, m := range repo.db.modules {
		if m.ProgramID == programID {
			modules = append(modules, *m)
		}
	}
	return modules, nil
}

func (repo *curriculumRepository) SaveModule(_ context.Context, m curriculum.Module) (curriculum.Module, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	for _, existing := range repo.db.modules {
		if existing.ProgramID == m.ProgramID && existing.Slug == m.Slug {
			m.ID = existing.ID
			break
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	repo.db.modules[m.ID] = &m
	return m, nil
}

func (repo *curriculumRepository) QueryLessons(_ context.Context, programID string) ([]curriculum.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lessons := make([]curriculum.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.ProgramID == programID {
			lessons = append(lessons, *l)
		}
	}
	return lessons, nil
}

func (repo *curriculumRepository) GetLesson(_ context.Context, id string) (curriculum.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return curriculum.Lesson{}, curriculum.ErrLessonNotFound
}

func (repo *curriculumRepository) SaveLesson(_ context.Context, l curriculum.Lesson) (curriculum.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	for _, existing := range repo.db.lessons {
		if existing.ProgramID == l.ProgramID && existing.Slug == l.Slug {
			l.ID = existing.ID
			l.CreatedAt = existing.CreatedAt
			break
		}
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	repo.db.lessons[l.ID] = &l
	return l, nil
}

func (repo *curriculumRepository) GetEnrollment(_ context.Context, userID, programID string) (curriculum.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.enrollments[[2]string{userID, programID}]; ok {
		return *e, nil
	}
	return curriculum.Enrollment{}, curriculum.ErrEnrollmentNotFound
}

func (repo *curriculumRepository) QueryEnrollments(_ context.Context, userID string) ([]curriculum.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrollments := make([]curriculum.Enrollment, 0)
	for key, e := range repo.db.enrollments {
		if key[0] == userID {
			enrollments = append(enrollments, *e)
		}
	}
	curriculum.SortEnrollments(enrollments)
	return enrollments, nil
}

func (repo *curriculumRepository) SaveEnrollment(_ context.Context, e curriculum.Enrollment) (curriculum.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	repo.db.enrollments[[2]string{e.UserID, e.ProgramID}] = &e
	return e, nil
}

func (repo *curriculumRepository) GetProgress(_ context.Context, userID, lessonID string) (curriculum.LessonProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.progress[[2]string{userID, lessonID}]; ok {
		return *p, nil
	}
	return curriculum.LessonProgress{}, curriculum.ErrProgressNotFound
}

func (repo *curriculumRepository) QueryProgress(_ context.Context, userID, programID string) ([]curriculum.LessonProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	progress := make([]curriculum.LessonProgress, 0)
	for key, p := range repo.db.progress {
		if key[0] == userID && (programID == "" || p.ProgramID == programID) {
			progress = append(progress, *p)
		}
	}
	return progress, nil
}

func (repo *curriculumRepository) SaveProgress(_ context.Context, p curriculum.LessonProgress) (curriculum.LessonProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.ensure()

	repo.db.progress[[2]string{p.UserID, p.LessonID}] = &p
	return p, nil
}
