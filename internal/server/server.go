// Package server exposes the tarot and diagnosis session controllers over a
// JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/uranai/internal/config"
	"github.com/zulandar/uranai/internal/diagnosis"
	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/history"
	"github.com/zulandar/uranai/internal/store"
	"github.com/zulandar/uranai/internal/tarot"
	"gorm.io/gorm"
)

// Header names carrying caller identity and viewer timezone. Identity is
// established upstream; the API trusts the header.
const (
	HeaderUserID   = "X-User-ID"
	HeaderTimezone = "X-Timezone"
)

// sweepSchedule is how often idle sessions are expired.
const sweepSchedule = "@every 1m"

// Store is the persistence the API needs.
type Store interface {
	eligibility.CompletionReader
	history.Store
	tarot.Recorder
	diagnosis.Store
}

// Server holds the collaborators shared by all requests and the registries
// of live sessions.
type Server struct {
	store         Store
	gate          *eligibility.Gate
	history       *history.Reader
	questionnaire *diagnosis.Questionnaire
	sharer        tarot.Sharer
	loc           *time.Location
	revealDelay   time.Duration
	perPage       int
	now           func() time.Time
	newID         func() string

	tarotSessions *Registry[*tarot.Session]
	diagSessions  *Registry[*diagnosis.Session]
}

// Opts holds parameters for creating a Server.
type Opts struct {
	Store         Store
	Questionnaire *diagnosis.Questionnaire
	Sharer        tarot.Sharer     // optional team feed
	Location      *time.Location   // default viewer timezone
	ResetSchedule string           // tarot day boundary; defaults to local midnight
	RevealDelay   time.Duration    // defaults to tarot.DefaultRevealDelay
	PerPage       int              // default history page size
	MaxPerPage    int              // history page size cap
	IdleTimeout   time.Duration    // in-memory sessions idle this long are closed; 0 disables
	Now           func() time.Time // defaults to time.Now
	NewID         func() string    // defaults to uuid.NewString
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if opts.Questionnaire == nil {
		return nil, fmt.Errorf("server: questionnaire is required")
	}
	gate, err := eligibility.NewGate(eligibility.GateOpts{
		Store:         opts.Store,
		ResetSchedule: opts.ResetSchedule,
		Now:           opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	reader, err := history.NewReader(history.ReaderOpts{
		Store:      opts.Store,
		PerPage:    opts.PerPage,
		MaxPerPage: opts.MaxPerPage,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Server{
		store:         opts.Store,
		gate:          gate,
		history:       reader,
		questionnaire: opts.Questionnaire,
		sharer:        opts.Sharer,
		loc:           loc,
		revealDelay:   opts.RevealDelay,
		perPage:       opts.PerPage,
		now:           opts.Now,
		newID:         newID,
		tarotSessions: NewRegistry[*tarot.Session]("tarot", opts.IdleTimeout, opts.Now),
		diagSessions:  NewRegistry[*diagnosis.Session]("diagnosis", opts.IdleTimeout, opts.Now),
	}, nil
}

// Sweep expires idle sessions of both kinds.
func (s *Server) Sweep() int {
	return s.tarotSessions.Sweep() + s.diagSessions.Sweep()
}

// Close closes every live session, cancelling pending reveals.
func (s *Server) Close() {
	s.tarotSessions.CloseAll()
	s.diagSessions.CloseAll()
}

// Router builds the gin engine serving the API.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	return router
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB            *gorm.DB
	Config        *config.Config
	Questionnaire *diagnosis.Questionnaire
	Sharer        tarot.Sharer // optional
	Out           io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully and closes all live sessions.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Config == nil {
		return fmt.Errorf("server: config is required")
	}
	cfg := opts.Config

	st, err := store.New(opts.DB)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	srv, err := New(Opts{
		Store:         st,
		Questionnaire: opts.Questionnaire,
		Sharer:        opts.Sharer,
		Location:      cfg.Location(),
		ResetSchedule: cfg.Tarot.ResetSchedule,
		RevealDelay:   cfg.Tarot.RevealDelay,
		PerPage:       cfg.History.PerPage,
		MaxPerPage:    cfg.History.MaxPerPage,
		IdleTimeout:   cfg.Server.IdleTimeout,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	janitor := cron.New()
	if _, err := janitor.AddFunc(sweepSchedule, func() { srv.Sweep() }); err != nil {
		return fmt.Errorf("server: schedule session sweep: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	gin.SetMode(gin.ReleaseMode)
	port := cfg.Server.Port
	if port <= 0 {
		port = 8080
	}
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Router(),
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "uranai API listening on http://localhost:%d\n", port)
	}

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// statusFor maps a flow error kind to an HTTP status.
func statusFor(err error) int {
	switch flow.KindOf(err) {
	case flow.KindValidation:
		return http.StatusUnprocessableEntity
	case flow.KindSequence:
		return http.StatusConflict
	case flow.KindIO:
		return http.StatusServiceUnavailable
	case flow.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// errorBody is the JSON shape of every error response.
func errorBody(err error) gin.H {
	body := gin.H{"error": flow.Message(err)}
	if k := flow.KindOf(err); k != "" {
		body["kind"] = k
	}
	return body
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		log.Printf("server: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
