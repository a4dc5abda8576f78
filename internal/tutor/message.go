package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/logging"
)

// ReplyKind tells a transport what a reply carries.
type ReplyKind string

const (
	ReplyWelcome  ReplyKind = "welcome"
	ReplyHelp     ReplyKind = "help"
	ReplyQuestion ReplyKind = "question"
	ReplyFeedback ReplyKind = "feedback"
	ReplyResult   ReplyKind = "result"
	ReplyLessons  ReplyKind = "lessons"
	ReplyProgress ReplyKind = "progress"
	ReplyInfo     ReplyKind = "info"
	ReplyError    ReplyKind = "error"
)

// ErrorCode is the transport-neutral form of an orchestrator error.
type ErrorCode string

const (
	CodeSessionConflict    ErrorCode = "session_conflict"
	CodeNoActiveSession    ErrorCode = "no_active_session"
	CodeServiceUnavailable ErrorCode = "service_unavailable"
	CodeUnknownLesson      ErrorCode = "unknown_lesson"
	CodeLessonLocked       ErrorCode = "lesson_locked"
	CodeCancelled          ErrorCode = "cancelled"
	CodeNothingToRetry     ErrorCode = "nothing_to_retry"
	CodeUnknownCommand     ErrorCode = "unknown_command"
	CodeEmptyMessage       ErrorCode = "empty_message"
	CodeInternal           ErrorCode = "internal"
)

// Reply is the response to one inbound message.
type Reply struct {
	Kind ReplyKind `json:"kind"`

	// Text is a plain-text rendering suitable for a chat client.
	Text string `json:"text"`

	LessonID       string   `json:"lesson_id,omitempty"`
	Question       string   `json:"question,omitempty"`
	QuestionNumber int      `json:"question_number,omitempty"`
	QuestionCount  int      `json:"question_count,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Feedback       string   `json:"feedback,omitempty"`
	Average        *float64 `json:"average,omitempty"`
	Outcome        Outcome  `json:"outcome,omitempty"`
	Report         *Report  `json:"report,omitempty"`

	Error ErrorCode `json:"error,omitempty"`
}

// Commands understood by HandleMessage. Anything not starting with a
// slash is an answer.
const (
	CmdStart    = "/start"
	CmdHelp     = "/help"
	CmdLessons  = "/lessons"
	CmdLesson   = "/lesson"
	CmdResume   = "/resume"
	CmdAbandon  = "/abandon"
	CmdStop     = "/stop"
	CmdRetry    = "/retry"
	CmdProgress = "/progress"
)

// HandleMessage routes one inbound message. Every error is mapped to a
// reply with an ErrorCode.
func (o *Orchestrator) HandleMessage(ctx context.Context, learnerID, text string) Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return o.errorReply(learnerID, fmt.Errorf("empty message"), CodeEmptyMessage)
	}
	if !strings.HasPrefix(text, "/") {
		return o.answer(ctx, learnerID, text)
	}

	cmd, arg, _ := strings.Cut(text, " ")
	cmd = strings.ToLower(cmd)
	// Telegram group syntax: /lesson@SomeBot
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	arg = strings.TrimSpace(arg)

	switch cmd {
	case CmdStart:
		if _, err := o.RegisterLearner(ctx, learnerID, ""); err != nil {
			return o.fail(learnerID, err)
		}
		return Reply{Kind: ReplyWelcome, Text: welcomeText(o.curriculum.Title)}
	case CmdHelp:
		return Reply{Kind: ReplyHelp, Text: helpText}
	case CmdLessons:
		rep, err := o.Progress(ctx, learnerID)
		if err != nil {
			return o.fail(learnerID, err)
		}
		return Reply{Kind: ReplyLessons, Text: lessonsText(rep), Report: rep}
	case CmdProgress:
		rep, err := o.Progress(ctx, learnerID)
		if err != nil {
			return o.fail(learnerID, err)
		}
		return Reply{Kind: ReplyProgress, Text: progressText(rep), Report: rep}
	case CmdLesson:
		lessonID := arg
		if lessonID == "" {
			l, err := o.CurrentLesson(ctx, learnerID)
			if err != nil {
				return o.fail(learnerID, err)
			}
			lessonID = l.ID
		}
		sess, err := o.StartLesson(ctx, learnerID, lessonID)
		if err != nil {
			return o.fail(learnerID, err)
		}
		return o.questionReply(sess, "")
	case CmdRetry:
		sess, err := o.RetryLesson(ctx, learnerID)
		if err != nil {
			return o.fail(learnerID, err)
		}
		return o.questionReply(sess, "")
	case CmdResume:
		sess, err := o.ResumeSession(ctx, learnerID)
		if err != nil {
			return o.fail(learnerID, err)
		}
		return o.questionReply(sess, "")
	case CmdAbandon, CmdStop:
		abandoned, err := o.AbandonSession(ctx, learnerID)
		if err != nil {
			return o.fail(learnerID, err)
		}
		if len(abandoned) == 0 {
			return Reply{Kind: ReplyInfo, Text: "Nothing to stop: no lesson is in progress."}
		}
		return Reply{
			Kind:     ReplyInfo,
			LessonID: abandoned[0].LessonID,
			Outcome:  OutcomeAbandoned,
			Text:     fmt.Sprintf("Stopped %s. Start again any time with %s %s.", o.title(abandoned[0].LessonID), CmdLesson, abandoned[0].LessonID),
		}
	default:
		return o.errorReply(learnerID, fmt.Errorf("unknown command %q", cmd), CodeUnknownCommand)
	}
}

func (o *Orchestrator) answer(ctx context.Context, learnerID, text string) Reply {
	res, err := o.SubmitAnswer(ctx, learnerID, text)
	if err != nil {
		return o.fail(learnerID, err)
	}

	attempt := res.Session.Attempts[len(res.Session.Attempts)-1]
	if res.Outcome == OutcomeContinue {
		attempt = res.Session.Attempts[len(res.Session.Attempts)-2]
	}
	score := res.Evaluation.Score
	feedback := feedbackText(attempt.Index+1, res.Evaluation.Score, res.Evaluation.Feedback)

	if res.Outcome == OutcomeContinue {
		r := o.questionReply(res.Session, feedback)
		r.Kind = ReplyFeedback
		r.Score = &score
		r.Feedback = res.Evaluation.Feedback
		return r
	}

	avg := res.Average
	lesson, _ := o.curriculum.Lesson(res.Session.LessonID)
	return Reply{
		Kind:     ReplyResult,
		LessonID: lesson.ID,
		Score:    &score,
		Feedback: res.Evaluation.Feedback,
		Average:  &avg,
		Outcome:  res.Outcome,
		Text:     feedback + "\n\n" + resultText(lesson.Title, res, lesson.PassThreshold),
	}
}

func (o *Orchestrator) questionReply(sess *Session, prefix string) Reply {
	pending := sess.Pending()
	lesson, _ := o.curriculum.Lesson(sess.LessonID)
	r := Reply{
		Kind:          ReplyQuestion,
		LessonID:      sess.LessonID,
		QuestionCount: lesson.QuestionCount,
	}
	if pending == nil {
		r.Text = prefix
		return r
	}
	r.Question = pending.Question
	r.QuestionNumber = pending.Index + 1
	body := fmt.Sprintf("%s\nQuestion %d of %d:\n%s", lesson.Title, r.QuestionNumber, r.QuestionCount, pending.Question)
	if prefix != "" {
		body = prefix + "\n\n" + body
	}
	r.Text = body
	return r
}

func (o *Orchestrator) title(lessonID string) string {
	if l, ok := o.curriculum.Lesson(lessonID); ok && l.Title != "" {
		return l.Title
	}
	return lessonID
}

// fail maps an orchestrator error to a reply.
func (o *Orchestrator) fail(learnerID string, err error) Reply {
	return o.errorReply(learnerID, err, CodeFor(err))
}

func (o *Orchestrator) errorReply(learnerID string, err error, code ErrorCode) Reply {
	if code == CodeInternal {
		o.log.Error("message handling failed", logging.Learner(learnerID), zap.Error(err))
	} else {
		o.log.Debug("message rejected", logging.Learner(learnerID), zap.String("code", string(code)), zap.Error(err))
	}
	return Reply{Kind: ReplyError, Error: code, Text: ErrorText(code)}
}

// CodeFor classifies an orchestrator error.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrSessionConflict):
		return CodeSessionConflict
	case errors.Is(err, ErrNoActiveSession):
		return CodeNoActiveSession
	case errors.Is(err, ErrServiceUnavailable):
		return CodeServiceUnavailable
	case errors.Is(err, ErrUnknownLesson):
		return CodeUnknownLesson
	case errors.Is(err, ErrLessonLocked):
		return CodeLessonLocked
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrNothingToRetry):
		return CodeNothingToRetry
	default:
		return CodeInternal
	}
}

// ErrorText is the default user-facing wording of an error code.
func ErrorText(code ErrorCode) string {
	switch code {
	case CodeSessionConflict:
		return "Still working on your previous message. Please try again in a moment."
	case CodeNoActiveSession:
		return "No lesson is in progress. Send /lesson to start one or /lessons to see them all."
	case CodeServiceUnavailable:
		return "The tutor is having trouble right now. Nothing was lost; please send that again shortly."
	case CodeUnknownLesson:
		return "There is no lesson with that id. Send /lessons to see the list."
	case CodeLessonLocked:
		return "That lesson is still locked. Pass the earlier lessons first."
	case CodeCancelled:
		return "That request was cancelled."
	case CodeNothingToRetry:
		return "There is no finished lesson to retry yet."
	case CodeUnknownCommand:
		return "Unknown command. Send /help for the list."
	case CodeEmptyMessage:
		return "Please send your answer as text."
	default:
		return "Something went wrong. Please try again."
	}
}
