package telegram

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbot/internal/tutor"
)

type fakeAPI struct {
	updates chan tgbotapi.Update

	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	actions int
	stopped bool
	gotPoll tgbotapi.UpdateConfig
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.gotPoll = c
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

type fakeHandler struct {
	mu         sync.Mutex
	registered map[string]string
	texts      []string
	reply      tutor.Reply
}

func (h *fakeHandler) RegisterLearner(_ context.Context, id, name string) (*tutor.Learner, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registered == nil {
		h.registered = map[string]string{}
	}
	h.registered[id] = name
	return &tutor.Learner{ID: id, DisplayName: name}, nil
}

func (h *fakeHandler) HandleMessage(_ context.Context, id, text string) tutor.Reply {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, id+":"+text)
	return h.reply
}

func update(t *testing.T, raw string) tgbotapi.Update {
	t.Helper()
	var u tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}

func runBot(t *testing.T, api *fakeAPI, h *fakeHandler, ups ...tgbotapi.Update) {
	t.Helper()
	for _, u := range ups {
		api.updates <- u
	}
	close(api.updates)

	b := New(api, h, WithWorkers(2), WithPollTimeout(5))
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Equal(t, 5, api.gotPoll.Timeout)
}

func TestBot_AnswerRoundTrip(t *testing.T) {
	api := newFakeAPI()
	h := &fakeHandler{reply: tutor.Reply{Kind: tutor.ReplyFeedback, Text: "Answer 1: 80/100."}}

	runBot(t, api, h, update(t, `{"update_id":1,"message":{"message_id":7,
		"from":{"id":42,"first_name":"Sam","last_name":"Lee"},
		"chat":{"id":4242,"type":"private"},"text":"risk is likelihood times impact"}}`))

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(4242), sent[0].ChatID)
	assert.Equal(t, "Answer 1: 80/100.", sent[0].Text)
	assert.Equal(t, []string{"tg:42:risk is likelihood times impact"}, h.texts)
	assert.Equal(t, "Sam Lee", h.registered["tg:42"])
	assert.Equal(t, 1, api.actions, "typing indicator for answers")
}

func TestBot_CommandSkipsTypingAction(t *testing.T) {
	api := newFakeAPI()
	h := &fakeHandler{reply: tutor.Reply{Kind: tutor.ReplyHelp, Text: "help"}}

	runBot(t, api, h, update(t, `{"update_id":1,"message":{"message_id":1,
		"from":{"id":7,"username":"kim"},"chat":{"id":7,"type":"private"},"text":"/help"}}`))

	assert.Equal(t, 0, api.actions)
	assert.Equal(t, "kim", h.registered["tg:7"])
	require.Len(t, api.messages(), 1)
}

func TestBot_IgnoresNonMessageUpdates(t *testing.T) {
	api := newFakeAPI()
	h := &fakeHandler{reply: tutor.Reply{Text: "x"}}

	runBot(t, api, h, update(t, `{"update_id":3}`))

	assert.Empty(t, api.messages())
	assert.Empty(t, h.texts)
}

func TestBot_StopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	b := New(api, &fakeHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "hi", Render(tutor.Reply{Kind: tutor.ReplyInfo, Text: "hi"}))
	assert.Contains(t, Render(tutor.Reply{Kind: tutor.ReplyError, Error: tutor.CodeServiceUnavailable, Text: "generic"}), "progress is safe")
	assert.Equal(t, "generic", Render(tutor.Reply{Kind: tutor.ReplyError, Error: tutor.CodeCancelled, Text: "generic"}))
	assert.Equal(t, tutor.ErrorText(tutor.CodeInternal), Render(tutor.Reply{Kind: tutor.ReplyError, Error: tutor.CodeInternal}))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"abc"}, split("abc", 10))
	assert.Nil(t, split("", 10))

	parts := split("aaaa\nbbbb\ncc", 6)
	assert.Equal(t, []string{"aaaa", "bbbb", "cc"}, parts)

	long := strings.Repeat("é", 10)
	parts = split(long, 4)
	require.Len(t, parts, 3)
	assert.Equal(t, "éééé", parts[0])
	assert.Equal(t, "éé", parts[2])
}
