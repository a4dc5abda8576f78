// Package telegram delivers the tutor over the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/tutorbot/internal/logging"
	"github.com/abhisek/tutorbot/internal/tutor"
)

// MaxMessageLen is Telegram's limit on message text, in characters.
const MaxMessageLen = 4096

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler answers learner messages. *tutor.Orchestrator implements it.
type Handler interface {
	RegisterLearner(ctx context.Context, learnerID, displayName string) (*tutor.Learner, error)
	HandleMessage(ctx context.Context, learnerID, text string) tutor.Reply
}

// Bot polls for updates and dispatches them to a Handler.
type Bot struct {
	api     API
	handler Handler
	workers int
	timeout int
	log     *zap.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithWorkers bounds how many updates are handled at once.
func WithWorkers(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(b *Bot) {
		if log != nil {
			b.log = log
		}
	}
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(b *Bot) { b.timeout = seconds }
}

// Dial connects to the Bot API with the given token.
func Dial(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// New builds a Bot.
func New(api API, h Handler, opts ...Option) *Bot {
	b := &Bot{api: api, handler: h, workers: 8, timeout: 60, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// LearnerID is the tutor identity of a Telegram user.
func LearnerID(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

// Run polls until ctx is cancelled or the update channel closes, then
// waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)

	var g errgroup.Group
	g.SetLimit(b.workers)

	b.log.Info("telegram polling started", zap.Int("workers", b.workers))
loop:
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			if upd.Message == nil || upd.Message.From == nil {
				continue
			}
			msg := upd.Message
			g.Go(func() error {
				b.handle(ctx, msg)
				return nil
			})
		}
	}
	err := g.Wait()
	b.log.Info("telegram polling stopped")
	return err
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	learnerID := LearnerID(msg.From.ID)
	chatID := msg.Chat.ID

	if _, err := b.handler.RegisterLearner(ctx, learnerID, displayName(msg.From)); err != nil {
		b.log.Warn("register learner failed", logging.Learner(learnerID), zap.Error(err))
	}

	if !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		// Answers go through the LLM; show the typing indicator meanwhile.
		if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			b.log.Debug("chat action failed", zap.Error(err))
		}
	}

	reply := b.handler.HandleMessage(ctx, learnerID, msg.Text)
	for _, part := range split(Render(reply), MaxMessageLen) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			b.log.Error("send message failed", logging.Learner(learnerID), zap.Error(err))
			return
		}
	}
}

var errorText = map[tutor.ErrorCode]string{
	tutor.CodeSessionConflict:    "⏳ I'm still working on your previous message. Give me a moment and send it again.",
	tutor.CodeNoActiveSession:    "There's no lesson running. Send /lesson to start the next one or /lessons to pick.",
	tutor.CodeServiceUnavailable: "⚠️ I can't reach my question service right now. Your progress is safe; please try again shortly.",
	tutor.CodeLessonLocked:       "🔒 That lesson unlocks after you pass the ones before it. See /lessons.",
	tutor.CodeEmptyMessage:       "I can only read text answers. Please type your answer.",
}

// Render turns a reply into chat text.
func Render(r tutor.Reply) string {
	if r.Kind == tutor.ReplyError {
		if s, ok := errorText[r.Error]; ok {
			return s
		}
	}
	if r.Text == "" {
		return tutor.ErrorText(r.Error)
	}
	return r.Text
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

// split cuts s into chunks of at most max characters, preferring line
// breaks.
func split(s string, max int) []string {
	var out []string
	for utf8.RuneCountInString(s) > max {
		cut := byteOffset(s, max)
		if i := strings.LastIndexByte(s[:cut], '\n'); i > 0 {
			cut = i
		}
		out = append(out, s[:cut])
		s = strings.TrimLeft(s[cut:], "\n")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func byteOffset(s string, runes int) int {
	i := 0
	for n := range s {
		if i == runes {
			return n
		}
		i++
	}
	return len(s)
}
