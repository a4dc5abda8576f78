package tutor

import "errors"

var (
	// ErrSessionConflict: the (learner, lesson) pair already has an
	// active session or an operation in flight. Retry later.
	ErrSessionConflict = errors.New("session conflict")

	// ErrNoActiveSession: there is no session awaiting an answer.
	ErrNoActiveSession = errors.New("no active session")

	// ErrServiceUnavailable: a retriever, generator or evaluator call
	// kept failing. Nothing was persisted.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidScore: the evaluator returned a score outside [0, 100].
	ErrInvalidScore = errors.New("invalid score")

	// ErrUnknownLesson: the lesson id is not in the curriculum.
	ErrUnknownLesson = errors.New("unknown lesson")

	// ErrLessonLocked: earlier lessons must be passed first.
	ErrLessonLocked = errors.New("lesson locked")

	// ErrCancelled: the operation was pre-empted by an abandon.
	ErrCancelled = errors.New("operation cancelled")
)

// ErrNothingToRetry: the learner has no decided session to repeat.
var ErrNothingToRetry = errors.New("nothing to retry")

// ErrUnknownLearner: no learner with that id has been seen.
var ErrUnknownLearner = errors.New("unknown learner")
