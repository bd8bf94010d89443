package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/event"
	"github.com/trezcool/collegium/core/forum"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/message"
	"github.com/trezcool/collegium/core/query"
	"github.com/trezcool/collegium/core/resource"
)

type (
	Options struct {
		Address        string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
		JWTSecret      string
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator

		Store        *localstore.Store
		MessageSvc   *message.Service
		EventSvc     *event.Service
		ResourceSvc  *resource.Service
		ForumSvc     *forum.Service
		RemoteSource query.Source // nil when the remote backend is not configured
		LocalSource  query.Source
		QueryObs     query.Observer
		Metrics      http.Handler
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

// NewServer returns the API server. signalShutdown is called when a handler fails with a shutdown error.
func NewServer(opts *Options, signalShutdown func()) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup(signalShutdown)
	return s
}

func (s *server) setup(signalShutdown func()) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	if signalShutdown == nil {
		signalShutdown = func() {}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)
	if s.opts.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.opts.Metrics))
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.opts.JWTSecret))

	registerCollectionAPI(v1, jwt, s.opts.Store, s.opts.LocalSource, s.opts.Validate)
	registerMessageAPI(v1, jwt, s.opts.MessageSvc)
	registerEventAPI(v1, jwt, s.opts.EventSvc)
	registerResourceAPI(v1, jwt, s.opts.ResourceSvc)
	registerForumAPI(v1, jwt, s.opts.ForumSvc)
	registerQueryAPI(v1, jwt, s.opts.RemoteSource, s.opts.LocalSource, s.opts.Validate, s.opts.Logger, s.opts.QueryObs)
}

// Start serves until Stop is called.
func (s *server) Start() error {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Collegium API!")
}
