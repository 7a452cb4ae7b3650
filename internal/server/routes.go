package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/uranai/internal/diagnosis"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/tarot"
)

// Context keys set by middleware.
const (
	ctxUserID   = "uranai.user"
	ctxLocation = "uranai.location"
)

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", requireUser(), s.viewerLocation())

	t := api.Group("/tarot")
	t.GET("/eligibility", s.handleTarotEligibility)
	t.GET("/history", s.handleHistoryList)
	t.GET("/history/:readingID", s.handleHistoryGet)
	t.POST("/sessions", s.handleTarotStart)
	t.GET("/sessions/:id", s.withTarot(nil))
	t.DELETE("/sessions/:id", s.handleTarotClose)
	t.POST("/sessions/:id/advance", s.withTarot(tarotAdvance))
	t.POST("/sessions/:id/retreat", s.withTarot(tarotRetreat))
	t.POST("/sessions/:id/finalize", s.withTarot(tarotFinalize))
	t.POST("/sessions/:id/complete", s.withTarot(tarotComplete))
	t.POST("/sessions/:id/history", s.withTarot(tarotOpenHistory))
	t.POST("/sessions/:id/history/close", s.withTarot(tarotCloseHistory))
	t.POST("/sessions/:id/detail", s.withTarot(tarotOpenDetail))
	t.POST("/sessions/:id/detail/close", s.withTarot(tarotCloseDetail))

	d := api.Group("/diagnosis")
	d.GET("/questions", s.handleQuestions)
	d.GET("/result", s.handleDiagnosisResult)
	d.POST("/sessions", s.handleDiagnosisStart)
	d.GET("/sessions/:id", s.withDiagnosis(nil))
	d.DELETE("/sessions/:id", s.handleDiagnosisClose)
	d.POST("/sessions/:id/begin", s.withDiagnosis(diagBegin))
	d.POST("/sessions/:id/answer", s.withDiagnosis(diagAnswer))
	d.POST("/sessions/:id/gender", s.withDiagnosis(diagGender))
	d.POST("/sessions/:id/next", s.withDiagnosis(diagNext))
	d.POST("/sessions/:id/back", s.withDiagnosis(diagBack))
}

// requireUser rejects requests without a caller identity.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader(HeaderUserID)
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header"})
			return
		}
		c.Set(ctxUserID, user)
		c.Next()
	}
}

// viewerLocation resolves the viewer's timezone from the request header,
// falling back to the configured default.
func (s *Server) viewerLocation() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := s.loc
		if tz := c.GetHeader(HeaderTimezone); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown timezone " + strconv.Quote(tz)})
				return
			}
			loc = l
		}
		c.Set(ctxLocation, loc)
		c.Next()
	}
}

func userOf(c *gin.Context) string { return c.GetString(ctxUserID) }

func locationOf(c *gin.Context) *time.Location {
	if loc, ok := c.Get(ctxLocation); ok {
		return loc.(*time.Location)
	}
	return time.Local
}

// badRequest is a malformed request body, rejected before the session sees it.
type badRequest struct{ err error }

func (b *badRequest) Error() string { return "invalid request body: " + b.err.Error() }

// bindOptional decodes a JSON body into v. An empty body leaves v zero.
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return &badRequest{err: err}
	}
	return nil
}

// respondAction writes the outcome of a controller call: the session view on
// success, or the error alongside the unchanged view.
func respondAction(c *gin.Context, err error, view any) {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		c.JSON(http.StatusBadRequest, gin.H{"error": br.Error()})
	case err != nil:
		body := errorBody(err)
		body["session"] = view
		c.JSON(statusFor(err), body)
	default:
		c.JSON(http.StatusOK, gin.H{"session": view})
	}
}

func logStep(kind string) flow.Listener {
	return func(sessionID, step string) {
		log.Printf("server: %s session %s -> %s", kind, sessionID, step)
	}
}

// --- tarot ---

func (s *Server) handleTarotEligibility(c *gin.Context) {
	c.JSON(http.StatusOK, s.gate.Tarot(c.Request.Context(), userOf(c), locationOf(c)))
}

func (s *Server) handleTarotStart(c *gin.Context) {
	sess, decision, err := tarot.Start(c.Request.Context(), tarot.Opts{
		ID:          s.newID(),
		UserID:      userOf(c),
		Recorder:    s.store,
		History:     s.history,
		Gate:        s.gate,
		Sharer:      s.sharer,
		Location:    locationOf(c),
		RevealDelay: s.revealDelay,
		PerPage:     s.perPage,
		Now:         s.now,
		OnStep:      logStep("tarot"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"eligibility": decision})
		return
	}
	s.tarotSessions.Add(sess)
	c.JSON(http.StatusCreated, gin.H{"eligibility": decision, "session": sess.View()})
}

func (s *Server) handleTarotClose(c *gin.Context) {
	if !s.tarotSessions.Remove(c.Param("id"), userOf(c)) {
		abortWithError(c, flow.NotFound("tarot.close", "session not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

// tarotAction runs one controller call against a session.
type tarotAction func(c *gin.Context, sess *tarot.Session) error

// withTarot resolves the session, runs act and responds with the session
// view. Rejected calls respond with the error and the unchanged view.
func (s *Server) withTarot(act tarotAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.tarotSessions.Get(c.Param("id"), userOf(c))
		if !ok {
			abortWithError(c, flow.NotFound("tarot.session", "session not found"))
			return
		}
		var err error
		if act != nil {
			err = act(c, sess)
		}
		respondAction(c, err, sess.View())
	}
}

func tarotAdvance(c *gin.Context, sess *tarot.Session) error {
	var in tarot.Input
	if err := bindOptional(c, &in); err != nil {
		return err
	}
	return sess.Advance(c.Request.Context(), in)
}

func tarotRetreat(_ *gin.Context, sess *tarot.Session) error {
	return sess.Retreat()
}

type finalizeRequest struct {
	Feeling tarot.Feeling `json:"feeling"`
	Comment string        `json:"comment"`
}

func tarotFinalize(c *gin.Context, sess *tarot.Session) error {
	var req finalizeRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	return sess.Finalize(c.Request.Context(), req.Feeling, req.Comment)
}

func tarotComplete(c *gin.Context, sess *tarot.Session) error {
	return sess.Complete(c.Request.Context())
}

type pageRequest struct {
	Page int `json:"page"`
}

func tarotOpenHistory(c *gin.Context, sess *tarot.Session) error {
	var req pageRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	return sess.OpenHistory(c.Request.Context(), req.Page)
}

func tarotCloseHistory(_ *gin.Context, sess *tarot.Session) error {
	return sess.CloseHistory()
}

type detailRequest struct {
	ID uint `json:"id"`
}

func tarotOpenDetail(c *gin.Context, sess *tarot.Session) error {
	var req detailRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	return sess.OpenDetail(c.Request.Context(), req.ID)
}

func tarotCloseDetail(_ *gin.Context, sess *tarot.Session) error {
	return sess.CloseDetail()
}

func (s *Server) handleHistoryList(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		abortWithError(c, err)
		return
	}
	perPage, err := queryInt(c, "per_page")
	if err != nil {
		abortWithError(c, err)
		return
	}
	p, err := s.history.List(c.Request.Context(), userOf(c), page, perPage)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// queryInt parses an optional integer query parameter. Absent is 0.
func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, flow.Validation("history.list", "%s must be a whole number, got %q", name, raw)
	}
	return n, nil
}

func (s *Server) handleHistoryGet(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("readingID"), 10, 64)
	if err != nil {
		abortWithError(c, flow.NotFound("history.get", "reading %q is no longer available", c.Param("readingID")))
		return
	}
	rec, err := s.history.Get(c.Request.Context(), userOf(c), uint(id))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- diagnosis ---

func (s *Server) handleQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, s.questionnaire)
}

func (s *Server) handleDiagnosisResult(c *gin.Context) {
	res, err := s.store.DiagnosisResult(c.Request.Context(), userOf(c))
	if err != nil {
		abortWithError(c, flow.IO("diagnosis.result", "could not load your result", err))
		return
	}
	if res == nil {
		abortWithError(c, flow.NotFound("diagnosis.result", "no diagnosis yet"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"levels":                diagnosis.LevelsOf(res),
		"gender":                res.Gender,
		"questionnaire_version": res.QuestionnaireVersion,
		"completed_at":          res.CompletedAt,
	})
}

func (s *Server) handleDiagnosisStart(c *gin.Context) {
	sess, err := diagnosis.Start(c.Request.Context(), diagnosis.Opts{
		ID:            s.newID(),
		UserID:        userOf(c),
		Questionnaire: s.questionnaire,
		Store:         s.store,
		Gate:          s.gate,
		Now:           s.now,
		OnStep:        logStep("diagnosis"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.diagSessions.Add(sess)
	c.JSON(http.StatusCreated, gin.H{"session": sess.View()})
}

func (s *Server) handleDiagnosisClose(c *gin.Context) {
	if !s.diagSessions.Remove(c.Param("id"), userOf(c)) {
		abortWithError(c, flow.NotFound("diagnosis.close", "session not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

type diagAction func(c *gin.Context, sess *diagnosis.Session) error

func (s *Server) withDiagnosis(act diagAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.diagSessions.Get(c.Param("id"), userOf(c))
		if !ok {
			abortWithError(c, flow.NotFound("diagnosis.session", "session not found"))
			return
		}
		var err error
		if act != nil {
			err = act(c, sess)
		}
		respondAction(c, err, sess.View())
	}
}

func diagBegin(_ *gin.Context, sess *diagnosis.Session) error {
	return sess.Begin()
}

type answerRequest struct {
	QuestionID int `json:"question_id"`
	Score      int `json:"score"`
}

func diagAnswer(c *gin.Context, sess *diagnosis.Session) error {
	var req answerRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	return sess.Answer(req.QuestionID, req.Score)
}

type genderRequest struct {
	Gender string `json:"gender"`
}

func diagGender(c *gin.Context, sess *diagnosis.Session) error {
	var req genderRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	return sess.SetGender(req.Gender)
}

func diagNext(c *gin.Context, sess *diagnosis.Session) error {
	return sess.Next(c.Request.Context())
}

func diagBack(_ *gin.Context, sess *diagnosis.Session) error {
	return sess.Back()
}
