// Package storage opens the repositories of the configured database engine.
package storage

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/storage/database"
	"github.com/trezcool/kiongozi/storage/database/dummy"
	"github.com/trezcool/kiongozi/storage/database/postgres"
)

type Repositories struct {
	Users      user.Repository
	Curriculum curriculum.Repository
	Simulation simulation.Repository
	Debriefs   debrief.Repository
	Forum      forum.Repository
	Billing    billing.Repository

	// DB is nil for the in-memory engine.
	DB *sqlx.DB

	close func() error
}

// Close releases the database connection, if any.
func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// Open returns the repositories of conf.Database.Engine.
// A postgres database is created when missing, then migrated.
func Open(conf *core.Config) (*Repositories, error) {
	repos, err := Connect(conf)
	if err != nil || repos.DB == nil {
		return repos, err
	}
	if err = database.Migrate(repos.DB.DB); err != nil {
		_ = repos.Close()
		return nil, errors.Wrap(err, "migrating")
	}
	return repos, nil
}

// Connect is Open without the migrations.
func Connect(conf *core.Config) (*Repositories, error) {
	if conf.IsInMemory() {
		db := dummydb.Open()
		return &Repositories{
			Users:      dummydb.NewUserRepository(db),
			Curriculum: dummydb.NewCurriculumRepository(db),
			Simulation: dummydb.NewSimulationRepository(db),
			Debriefs:   dummydb.NewDebriefRepository(db),
			Forum:      dummydb.NewForumRepository(db),
			Billing:    dummydb.NewBillingRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Users:      pgrepos.NewUserRepository(db),
		Curriculum: pgrepos.NewCurriculumRepository(db),
		Simulation: pgrepos.NewSimulationRepository(db),
		Debriefs:   pgrepos.NewDebriefRepository(db),
		Forum:      pgrepos.NewForumRepository(db),
		Billing:    pgrepos.NewBillingRepository(db),
		DB:         db,
		close:      db.Close,
	}, nil
}
