package tutor

import (
	"time"

	"github.com/abhisek/tutorbot/internal/questiongen"
)

// State is where a learner's session sits in the lesson loop. Only
// StateAwaitingAnswer is ever persisted for an active session; the
// others exist while an operation runs.
type State string

const (
	StateIdle           State = "IDLE"
	StateAwaitingAnswer State = "AWAITING_ANSWER"
	StateEvaluating     State = "EVALUATING"
	StateDeciding       State = "DECIDING"
)

// Outcome is the result of a decision, and for archived sessions the
// reason they were archived.
type Outcome string

const (
	OutcomeContinue    Outcome = "CONTINUE"
	OutcomePassed      Outcome = "PASSED"
	OutcomeFailedRetry Outcome = "FAILED_RETRY"
	OutcomeRemediation Outcome = "REMEDIATION"
	OutcomeAbandoned   Outcome = "ABANDONED"
)

// Completed reports whether the outcome ends a session with a score.
func (o Outcome) Completed() bool {
	return o == OutcomePassed || o == OutcomeFailedRetry || o == OutcomeRemediation
}

// Learner is a person working through the curriculum.
type Learner struct {
	ID          string
	DisplayName string

	// CurrentLesson is the 1-based position of the furthest unlocked
	// lesson. Lessons at or before it may be started.
	CurrentLesson int

	// Archived learners are kept, never deleted.
	Archived bool

	CreatedAt    time.Time
	LastActiveAt time.Time
}

// QuestionAttempt is one question issued in a session. Answer, Score and
// the evaluation fields are set once, together.
type QuestionAttempt struct {
	Index      int
	Question   string
	Rubric     questiongen.Rubric
	Difficulty questiongen.Difficulty

	Answer     *string
	Score      *float64
	Feedback   string
	Confidence float64

	AskedAt    time.Time
	AnsweredAt *time.Time
}

// Answered reports whether the attempt has been scored.
func (a QuestionAttempt) Answered() bool {
	return a.Answer != nil && a.Score != nil
}

// Session is one learner's attempt at one lesson.
type Session struct {
	ID        string
	LearnerID string
	LessonID  string
	Attempts  []QuestionAttempt
	State     State

	// Outcome is set once the session is archived.
	Outcome Outcome

	StartedAt time.Time
	UpdatedAt time.Time
	EndedAt   *time.Time
}

// Scores returns the scores of answered attempts in order.
func (s *Session) Scores() []float64 {
	var out []float64
	for _, a := range s.Attempts {
		if a.Answered() {
			out = append(out, *a.Score)
		}
	}
	return out
}

// Average is the mean over answered attempts; ok is false when nothing
// has been answered.
func (s *Session) Average() (avg float64, ok bool) {
	return Mean(s.Scores())
}

// Pending returns the unanswered attempt awaiting the learner, if any.
func (s *Session) Pending() *QuestionAttempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	last := &s.Attempts[len(s.Attempts)-1]
	if last.Answered() {
		return nil
	}
	return last
}

// Questions returns every question text issued so far.
func (s *Session) Questions() []string {
	out := make([]string, len(s.Attempts))
	for i, a := range s.Attempts {
		out[i] = a.Question
	}
	return out
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Attempts = make([]QuestionAttempt, len(s.Attempts))
	for i, a := range s.Attempts {
		c.Attempts[i] = a.clone()
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

func (a QuestionAttempt) clone() QuestionAttempt {
	c := a
	c.Rubric.KeyPoints = append([]string(nil), a.Rubric.KeyPoints...)
	if a.Answer != nil {
		v := *a.Answer
		c.Answer = &v
	}
	if a.Score != nil {
		v := *a.Score
		c.Score = &v
	}
	if a.AnsweredAt != nil {
		v := *a.AnsweredAt
		c.AnsweredAt = &v
	}
	return c
}

// ProgressRecord summarises a learner's history with one lesson.
// Passed holds iff some completed session averaged at or above the
// lesson threshold.
type ProgressRecord struct {
	LearnerID string
	LessonID  string

	// Attempts counts completed (not abandoned) sessions.
	Attempts    int
	BestAverage float64
	LastAverage float64

	Passed   bool
	PassedAt *time.Time

	// ConsecutiveFailures counts failed sessions since the last pass.
	ConsecutiveFailures int
	RemediationRequired bool

	UpdatedAt time.Time
}

// Event kinds written to the audit log.
const (
	EventRemediationRequired = "remediation_required"
	EventLowConfidence       = "low_confidence_evaluation"
	EventLessonPassed        = "lesson_passed"
	EventLessonFailed        = "lesson_failed"
	EventSessionAbandoned    = "session_abandoned"
	EventAchievement         = "achievement_unlocked"
)

// Event is an audit record.
type Event struct {
	Kind      string
	LearnerID string
	LessonID  string
	SessionID string
	Payload   map[string]any
	At        time.Time
}

// Completion is everything written when a session finishes with a
// decision. Stores apply it in one transaction.
type Completion struct {
	Session  *Session
	Outcome  Outcome
	Progress ProgressRecord

	// Learner, when set, replaces the stored learner (pointer advance).
	Learner *Learner

	Events []Event
}
