package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/billing"
	"github.com/trezcool/kiongozi/core/content"
	"github.com/trezcool/kiongozi/core/curriculum"
	"github.com/trezcool/kiongozi/core/debrief"
	"github.com/trezcool/kiongozi/core/forum"
	"github.com/trezcool/kiongozi/core/recommend"
	"github.com/trezcool/kiongozi/core/simulation"
	"github.com/trezcool/kiongozi/core/user"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc       *user.Service
		CurriculumSvc *curriculum.Service
		RecommendSvc  *recommend.Service
		SimulationSvc *simulation.Service
		DebriefSvc    *debrief.Service
		ForumSvc      *forum.Service
		BillingSvc    *billing.Service
		ContentSvc    *content.Service

		// Limiters builds the limiter of each rate limit rule; in-memory limiters are used when nil.
		Limiters LimiterFactory
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		addr     string
		deps     *Deps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
		stop     context.CancelFunc
	}
)

var _ Server = (*server)(nil)

// NewServer sets up the API. When shutdown is nil, the server listens to SIGINT and SIGTERM.
func NewServer(addr string, shutdown chan os.Signal, deps *Deps) Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s := &server{
		addr:     addr,
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	authed := []echo.MiddlewareFunc{jwt, activeUserMiddleware(s.deps.UserSvc)}
	limit := newRateLimits(ctx, conf, s.deps.Limiters, s.deps.Logger)

	registerUserAPI(v1, authed, limit, s.deps)
	registerCurriculumAPI(v1, authed, s.deps)
	registerSimulationAPI(v1, authed, limit, s.deps)
	registerForumAPI(v1, authed, limit, s.deps)
	registerBillingAPI(v1, authed, limit, s.deps)
	registerContentAPI(v1, authed, s.deps)
}

func (s *server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	s.stop()
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Kiongozi API!")
}
