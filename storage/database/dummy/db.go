// Package dummydb keeps every repository in memory, for tests and local development.
package dummydb

import (
	"sync"

	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
)

type (
	DB struct {
		user       *userTable
		curriculum *curriculumTables
		simulation *simulationTables
		debrief    *debriefTable
		forum      *forumTables
		billing    *billingTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	curriculumTables struct {
		sync.RWMutex
		programs    map[string]*curriculum.Program
		modules     map[string]*curriculum.Module
		lessons     map[string]*curriculum.Lesson
		enrollments map[[2]string]*curriculum.Enrollment     // {userID, programID}
		progress    map[[2]string]*curriculum.LessonProgress // {userID, lessonID}
	}

	simulationTables struct {
		sync.RWMutex
		cases    map[string]*simulation.Case
		attempts map[string]*simulation.Attempt
	}

	debriefTable struct {
		sync.RWMutex
		table map[string]*debrief.Debrief // by attempt ID
	}

	forumTables struct {
		sync.RWMutex
		threads map[string]*forum.Thread
		posts   map[string]*forum.Post
	}

	billingTables struct {
		sync.RWMutex
		subscriptions map[string]*billing.Subscription
		events        map[string]billing.Event
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{},
		curriculum: &curriculumTables{},
		simulation: &simulationTables{},
		debrief:    &debriefTable{},
		forum:      &forumTables{},
		billing:    &billingTables{},
	}
}

// Reset empties every table. Repositories built on db stay valid.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = nil
	db.user.Unlock()

	db.curriculum.Lock()
	db.curriculum.programs = nil
	db.curriculum.modules = nil
	db.curriculum.lessons = nil
	db.curriculum.enrollments = nil
	db.curriculum.progress = nil
	db.curriculum.Unlock()

	db.simulation.Lock()
	db.simulation.cases = nil
	db.simulation.attempts = nil
	db.simulation.Unlock()

	db.debrief.Lock()
	db.debrief.table = nil
	db.debrief.Unlock()

	db.forum.Lock()
	db.forum.threads = nil
	db.forum.posts = nil
	db.forum.Unlock()

	db.billing.Lock()
	db.billing.subscriptions = nil
	db.billing.events = nil
	db.billing.Unlock()
}
