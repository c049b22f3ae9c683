package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kiongozi/apps/api/echo"
	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/content"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/recommend"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/services/ai"
	"github.com/trezcool/kiongozi/services/email"
	"github.com/trezcool/kiongozi/services/logger"
	"github.com/trezcool/kiongozi/services/ratelimit"
	"github.com/trezcool/kiongozi/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	// set up DB
	repos, err := storage.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if conf.IsInMemory() {
		logger.Warn("using the in-memory database; data is lost on restart")
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(repos.Users, mailSvc, conf)
	billingSvc := billing.NewService(repos.Billing, usrSvc, mailSvc, conf, logger)
	curriculumSvc := curriculum.NewService(repos.Curriculum, billingSvc)
	simulationSvc := simulation.NewService(repos.Simulation, validate)
	generator := aisvc.NewAnthropicGenerator(conf, logger)

	limiters, err := newLimiterFactory(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up rate limiter: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		conf.Server.Address,
		nil, /* shutdown */
		&echoapi.Deps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			UserSvc:       usrSvc,
			CurriculumSvc: curriculumSvc,
			RecommendSvc:  recommend.NewService(curriculumSvc),
			SimulationSvc: simulationSvc,
			DebriefSvc:    debrief.NewService(repos.Debriefs, simulationSvc, generator, logger),
			ForumSvc:      forum.NewService(repos.Forum, usrSvc, curriculumSvc, mailSvc, validate, logger),
			BillingSvc:    billingSvc,
			ContentSvc:    content.NewService(repos.Curriculum, repos.Simulation, validate, translator, logger),
			Limiters:      limiters,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// newLimiterFactory shares rate limit counters through redis when configured.
// A nil factory keeps them in process.
func newLimiterFactory(conf *core.Config) (echoapi.LimiterFactory, error) {
	if conf.Redis.URL == "" {
		return nil, nil
	}
	rdb, err := ratelimit.NewRedisClient(conf.Redis.URL)
	if err != nil {
		return nil, err
	}
	return func(rule string, limit int, window time.Duration) ratelimit.Limiter {
		return ratelimit.NewRedisFixedWindow(rdb, "kiongozi:ratelimit:"+rule, limit, window)
	}, nil
}
