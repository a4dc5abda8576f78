package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbot/internal/tutor"
)

type fakeTutor struct {
	reply      tutor.Reply
	report     *tutor.Report
	progErr    error
	lastID     string
	lastText   string
	registered string
}

func (f *fakeTutor) RegisterLearner(_ context.Context, id, name string) (*tutor.Learner, error) {
	f.registered = id + "=" + name
	return &tutor.Learner{ID: id, DisplayName: name}, nil
}

func (f *fakeTutor) HandleMessage(_ context.Context, id, text string) tutor.Reply {
	f.lastID, f.lastText = id, text
	return f.reply
}

func (f *fakeTutor) Progress(_ context.Context, id string) (*tutor.Report, error) {
	f.lastID = id
	if f.progErr != nil {
		return nil, f.progErr
	}
	return f.report, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(&fakeTutor{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPostMessage(t *testing.T) {
	ft := &fakeTutor{reply: tutor.Reply{Kind: tutor.ReplyQuestion, Text: "Question 1 of 3", QuestionNumber: 1, LessonID: "basics"}}
	r := NewRouter(ft, nil)

	rec := do(t, r, http.MethodPost, "/v1/learners/web:9/messages", `{"text":"/lesson","display_name":"Robin"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got tutor.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, tutor.ReplyQuestion, got.Kind)
	assert.Equal(t, "basics", got.LessonID)
	assert.Equal(t, 1, got.QuestionNumber)
	assert.Equal(t, "http:web:9", ft.lastID)
	assert.Equal(t, "/lesson", ft.lastText)
	assert.Equal(t, "http:web:9=Robin", ft.registered)
}

func TestPostMessage_ErrorStatus(t *testing.T) {
	ft := &fakeTutor{reply: tutor.Reply{Kind: tutor.ReplyError, Error: tutor.CodeSessionConflict, Text: "busy"}}
	rec := do(t, NewRouter(ft, nil), http.MethodPost, "/v1/learners/a/messages", `{"text":"answer"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"session_conflict"`)
	assert.Empty(t, ft.registered)
}

func TestPostMessage_BadBody(t *testing.T) {
	rec := do(t, NewRouter(&fakeTutor{}, nil), http.MethodPost, "/v1/learners/a/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestLearnerIDIsValidatedAndNamespaced(t *testing.T) {
	ft := &fakeTutor{reply: tutor.Reply{Kind: tutor.ReplyInfo}}
	r := NewRouter(ft, nil)

	rec := do(t, r, http.MethodPost, "/v1/learners/tg:42/messages", `{"text":"/progress"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http:tg:42", ft.lastID, "an HTTP caller cannot reach a Telegram learner")

	for _, path := range []string{
		"/v1/learners/%20%20/messages",
		"/v1/learners/" + strings.Repeat("x", 65) + "/messages",
		"/v1/learners/caf%C3%A9/messages",
	} {
		ft.lastID = ""
		rec := do(t, r, http.MethodPost, path, `{"text":"/progress"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "invalid_learner", path)
		assert.Empty(t, ft.lastID, "tutor must not be reached for %s", path)
	}

	rec = do(t, r, http.MethodGet, "/v1/learners/%20/progress", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProgress(t *testing.T) {
	ft := &fakeTutor{report: &tutor.Report{LearnerID: "a", Passed: 1, Total: 3}}
	rec := do(t, NewRouter(ft, nil), http.MethodGet, "/v1/learners/a/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got tutor.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Passed)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, "http:a", ft.lastID)

	ft.progErr = errors.New("disk gone")
	rec = do(t, NewRouter(ft, nil), http.MethodGet, "/v1/learners/a/progress", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk gone")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code tutor.ErrorCode
		want int
	}{
		{tutor.CodeServiceUnavailable, http.StatusServiceUnavailable},
		{tutor.CodeNoActiveSession, http.StatusNotFound},
		{tutor.CodeLessonLocked, http.StatusConflict},
		{tutor.CodeUnknownCommand, http.StatusBadRequest},
		{tutor.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tutor.Reply{Kind: tutor.ReplyError, Error: tt.code}), tt.code)
	}
	assert.Equal(t, http.StatusOK, StatusFor(tutor.Reply{Kind: tutor.ReplyResult}))
}
