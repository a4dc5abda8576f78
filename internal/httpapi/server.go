// Package httpapi exposes the tutor over HTTP for channels other than
// Telegram, plus a health probe.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/logging"
	"github.com/abhisek/tutorbot/internal/tutor"
)

// Tutor is the orchestrator surface served over HTTP.
type Tutor interface {
	RegisterLearner(ctx context.Context, learnerID, displayName string) (*tutor.Learner, error)
	HandleMessage(ctx context.Context, learnerID, text string) tutor.Reply
	Progress(ctx context.Context, learnerID string) (*tutor.Report, error)
}

// APIError is the body of every non-2xx response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// MessageRequest is the body of POST /v1/learners/:id/messages.
type MessageRequest struct {
	Text        string `json:"text"`
	DisplayName string `json:"display_name,omitempty"`
}

// LearnerPrefix namespaces learners created over HTTP, so a caller
// naming "tg:42" reaches "http:tg:42" and never a Telegram learner.
const LearnerPrefix = "http:"

const learnerKey = "learner_id"

type learnerURI struct {
	ID string `uri:"id" binding:"required,max=64,printascii"`
}

type handler struct {
	tutor Tutor
	log   *zap.Logger
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter builds the gin engine.
func NewRouter(t Tutor, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{tutor: t, log: log.Named("http")}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/healthz", healthz)
	learners := r.Group("/v1/learners/:id", h.resolveLearner)
	{
		learners.POST("/messages", h.postMessage)
		learners.GET("/progress", h.getProgress)
	}
	return r
}

func healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// resolveLearner validates :id and stores the namespaced learner id.
func (h *handler) resolveLearner(c *gin.Context) {
	var uri learnerURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_learner", err)
		return
	}
	id := strings.TrimSpace(uri.ID)
	if id == "" {
		respondError(c, http.StatusBadRequest, "invalid_learner", errors.New("learner id is blank"))
		return
	}
	c.Set(learnerKey, LearnerPrefix+id)
	c.Next()
}

// POST /v1/learners/:id/messages
// Routes one learner message and returns the tutor's reply.
func (h *handler) postMessage(c *gin.Context) {
	learnerID := c.GetString(learnerKey)
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	if req.DisplayName != "" {
		if _, err := h.tutor.RegisterLearner(ctx, learnerID, req.DisplayName); err != nil {
			h.log.Warn("register learner failed", logging.Learner(learnerID), zap.Error(err))
		}
	}
	reply := h.tutor.HandleMessage(ctx, learnerID, req.Text)
	c.JSON(StatusFor(reply), reply)
}

// GET /v1/learners/:id/progress
func (h *handler) getProgress(c *gin.Context) {
	learnerID := c.GetString(learnerKey)
	rep, err := h.tutor.Progress(c.Request.Context(), learnerID)
	if err != nil {
		h.log.Error("progress failed", logging.Learner(learnerID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, string(tutor.CodeInternal), err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// StatusFor maps a reply to an HTTP status code.
func StatusFor(r tutor.Reply) int {
	if r.Kind != tutor.ReplyError {
		return http.StatusOK
	}
	switch r.Error {
	case tutor.CodeSessionConflict, tutor.CodeLessonLocked:
		return http.StatusConflict
	case tutor.CodeNoActiveSession, tutor.CodeUnknownLesson, tutor.CodeNothingToRetry:
		return http.StatusNotFound
	case tutor.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case tutor.CodeUnknownCommand, tutor.CodeEmptyMessage:
		return http.StatusBadRequest
	case tutor.CodeCancelled:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func (h *handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Server runs the router until its context ends.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// NewServer binds the router to addr.
func NewServer(addr string, t Tutor, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(t, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http listening", zap.String("addr", s.srv.Addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
