package curriculum

import (
	"sort"
	"time"
)

// Program levels
const (
	LevelFoundation = "foundation"
	LevelAdvanced   = "advanced"
	LevelExecutive  = "executive"
)

// Lesson kinds
const (
	KindReading = "reading"
	KindVideo   = "video"
	KindCase    = "case"
)

// Progress statuses
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

var (
	Levels = []string{LevelFoundation, LevelAdvanced, LevelExecutive}
	Kinds  = []string{KindReading, KindVideo, KindCase}
)

type Program struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Level       string    `json:"level"`
	IsPremium   bool      `json:"is_premium"`
	IsFeatured  bool      `json:"is_featured"`
	IsPublished bool      `json:"is_published"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Module struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
}

type Lesson struct {
	ID               string    `json:"id"`
	ProgramID        string    `json:"program_id"`
	ModuleID         string    `json:"module_id"`
	Slug             string    `json:"slug"`
	Title            string    `json:"title"`
	Kind             string    `json:"kind"`
	Body             string    `json:"body,omitempty"`
	BodyHTML         string    `json:"body_html,omitempty"`
	VideoURL         string    `json:"video_url,omitempty"`
	CaseSlug         string    `json:"case_slug,omitempty"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	Position         int       `json:"position"`
	ContentHash      string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Summary strips the lesson contents, for outlines.
func (l Lesson) Summary() Lesson {
	l.Body = ""
	l.BodyHTML = ""
	return l
}

type Enrollment struct {
	UserID         string     `json:"user_id"`
	ProgramID      string     `json:"program_id"`
	EnrolledAt     time.Time  `json:"enrolled_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

func (e Enrollment) IsCompleted() bool { return e.CompletedAt != nil }

type LessonProgress struct {
	UserID      string     `json:"user_id"`
	LessonID    string     `json:"lesson_id"`
	ProgramID   string     `json:"program_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type (
	OutlineModule struct {
		Module
		Lessons []Lesson `json:"lessons"`
	}

	Outline struct {
		Program Program         `json:"program"`
		Modules []OutlineModule `json:"modules"`
	}

	ProgramProgress struct {
		Program          Program     `json:"program"`
		Enrollment       *Enrollment `json:"enrollment"`
		TotalLessons     int         `json:"total_lessons"`
		CompletedLessons int         `json:"completed_lessons"`
		Percent          int         `json:"percent"`
	}
)

// Lessons flattens the outline in reading order.
func (o Outline) Lessons() []Lesson {
	var lessons []Lesson
	for _, m := range o.Modules {
		lessons = append(lessons, m.Lessons...)
	}
	return lessons
}

// BuildOutline groups lessons under their modules.
// Modules and lessons are sorted by Position then Slug.
func BuildOutline(program Program, modules []Module, lessons []Lesson) Outline {
	sortModules(modules)
	sortLessons(lessons)

	byModule := make(map[string][]Lesson, len(modules))
	for _, l := range lessons {
		byModule[l.ModuleID] = append(byModule[l.ModuleID], l.Summary())
	}

	out := Outline{Program: program, Modules: make([]OutlineModule, 0, len(modules))}
	for _, m := range modules {
		ls := byModule[m.ID]
		if ls == nil {
			ls = []Lesson{}
		}
		out.Modules = append(out.Modules, OutlineModule{Module: m, Lessons: ls})
	}
	return out
}

// OrderLessons sorts lessons in reading order: module position, lesson position, slug.
func OrderLessons(modules []Module, lessons []Lesson) []Lesson {
	sortModules(modules)
	rank := make(map[string]int, len(modules))
	for i, m := range modules {
		rank[m.ID] = i
	}
	ordered := make([]Lesson, len(lessons))
	copy(ordered, lessons)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank[ordered[i].ModuleID], rank[ordered[j].ModuleID]
		if ri != rj {
			return ri < rj
		}
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].Slug < ordered[j].Slug
	})
	return ordered
}

func sortModules(modules []Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Position != modules[j].Position {
			return modules[i].Position < modules[j].Position
		}
		return modules[i].Slug < modules[j].Slug
	})
}

func sortLessons(lessons []Lesson) {
	sort.SliceStable(lessons, func(i, j int) bool {
		if lessons[i].Position != lessons[j].Position {
			return lessons[i].Position < lessons[j].Position
		}
		return lessons[i].Slug < lessons[j].Slug
	})
}

// SortPrograms sorts programs for catalogue listings: Position then Slug.
func SortPrograms(programs []Program) {
	sort.SliceStable(programs, func(i, j int) bool {
		if programs[i].Position != programs[j].Position {
			return programs[i].Position < programs[j].Position
		}
		return programs[i].Slug < programs[j].Slug
	})
}

// SortEnrollments sorts enrollments most recently active first.
func SortEnrollments(enrollments []Enrollment) {
	sort.SliceStable(enrollments, func(i, j int) bool {
		return enrollments[i].LastActivityAt.After(enrollments[j].LastActivityAt)
	})
}

type ProgramFilter struct {
	Search             string
	Level              string
	IncludeUnpublished bool
}

type ProgramGetFilter struct {
	ID   string
	Slug string
}

type ProgressRequest struct {
	Status string `json:"status" validate:"required,oneof=in_progress completed"`
}
