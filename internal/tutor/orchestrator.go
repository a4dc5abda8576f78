// Package tutor runs the lesson loop: it issues questions, scores
// answers, decides pass or fail and records progress.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/achievement"
	"github.com/abhisek/tutorbot/internal/curriculum"
	"github.com/abhisek/tutorbot/internal/evaluator"
	"github.com/abhisek/tutorbot/internal/keylock"
	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/logging"
	"github.com/abhisek/tutorbot/internal/questiongen"
	"github.com/abhisek/tutorbot/internal/telemetry"
)

type timeFunc func() time.Time

// Options tunes an Orchestrator.
type Options struct {
	// ServiceRetries is how many times a failed retriever, generator or
	// evaluator call is retried before ErrServiceUnavailable.
	ServiceRetries int
	Backoff        llm.RetryConfig

	// Passages is how many knowledge passages are fetched per question.
	Passages int

	// Locker guards (learner, lesson) pairs. Nil means an in-process
	// lock table.
	Locker keylock.Locker

	Logger *zap.Logger
	Tracer trace.Tracer
	Now    func() time.Time
	NewID  func() string
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		ServiceRetries: 2,
		Backoff: llm.RetryConfig{
			InitialWait: 250 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Multiplier:  2,
		},
		Passages: 5,
	}
}

// Orchestrator coordinates curriculum, knowledge, generation, evaluation
// and persistence for every learner. It is safe for concurrent use.
type Orchestrator struct {
	curriculum *curriculum.Curriculum
	store      ProgressStore
	retriever  Retriever
	generator  questiongen.Generator
	evaluator  evaluator.Evaluator

	locker   keylock.Locker
	retries  int
	backoff  llm.RetryConfig
	passages int
	log      *zap.Logger
	tracer   trace.Tracer
	now      timeFunc
	newID    func() string
	inflight *inflight
}

// New wires an Orchestrator. retriever may be nil, in which case every
// question is generated from the lesson outline alone.
func New(c *curriculum.Curriculum, store ProgressStore, retriever Retriever, gen questiongen.Generator, eval evaluator.Evaluator, opts Options) *Orchestrator {
	if opts.ServiceRetries < 0 {
		opts.ServiceRetries = 0
	}
	if opts.Passages <= 0 {
		opts.Passages = 5
	}
	if opts.Locker == nil {
		opts.Locker = keylock.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Orchestrator{
		curriculum: c,
		store:      store,
		retriever:  retriever,
		generator:  gen,
		evaluator:  eval,
		locker:     opts.Locker,
		retries:    opts.ServiceRetries,
		backoff:    opts.Backoff,
		passages:   opts.Passages,
		log:        opts.Logger,
		tracer:     opts.Tracer,
		now:        opts.Now,
		newID:      opts.NewID,
		inflight:   newInflight(),
	}
}

// Curriculum returns the lesson catalogue.
func (o *Orchestrator) Curriculum() *curriculum.Curriculum {
	return o.curriculum
}

// Result is the outcome of one submitted answer.
type Result struct {
	Session    *Session
	Evaluation evaluator.Evaluation
	Outcome    Outcome

	// Next is the question now awaiting an answer, on OutcomeContinue.
	Next *QuestionAttempt

	// Average is the session mean, once the session is decided.
	Average float64

	// NextLesson is the newly unlocked lesson after a pass, if any.
	NextLesson *curriculum.Lesson

	// Achievements unlocked by this decision.
	Achievements []achievement.Award
}

// RegisterLearner creates the learner on first contact and refreshes the
// display name. Archived learners are reactivated.
func (o *Orchestrator) RegisterLearner(ctx context.Context, learnerID, displayName string) (*Learner, error) {
	l, err := o.store.GetLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load learner: %w", err)
	}
	now := o.now()
	switch {
	case l == nil:
		l = &Learner{ID: learnerID, DisplayName: displayName, CurrentLesson: 1, CreatedAt: now}
	case l.Archived || (displayName != "" && displayName != l.DisplayName):
		l.Archived = false
		if displayName != "" {
			l.DisplayName = displayName
		}
	default:
		return l, nil
	}
	l.LastActiveAt = now
	if err := o.store.UpsertLearner(ctx, l); err != nil {
		return nil, fmt.Errorf("save learner: %w", err)
	}
	return l, nil
}

// StartLesson opens a session for the pair and issues its first
// question. Nothing is persisted unless the question was generated.
func (o *Orchestrator) StartLesson(ctx context.Context, learnerID, lessonID string) (_ *Session, err error) {
	ctx, span := o.startSpan(ctx, "tutor.StartLesson", learnerID, lessonID)
	defer func() { endSpan(span, err) }()

	lesson, ok := o.curriculum.Lesson(lessonID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLesson, lessonID)
	}

	release, err := o.locker.TryLock(ctx, lockKey(learnerID, lessonID))
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	opCtx, done := o.inflight.track(ctx, learnerID, lessonID)
	defer done()

	learner, err := o.loadLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if lesson.Position > learner.CurrentLesson {
		return nil, fmt.Errorf("%w: %q requires the earlier lessons", ErrLessonLocked, lessonID)
	}

	active, err := o.store.GetActiveSession(ctx, learnerID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("%w: lesson %q already in progress", ErrSessionConflict, lessonID)
	}

	records, err := o.store.ListProgress(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	difficulty := DifficultyFor(records)

	now := o.now()
	sess := &Session{
		ID:        o.newID(),
		LearnerID: learnerID,
		LessonID:  lessonID,
		State:     StateIdle,
		StartedAt: now,
	}

	first, err := o.nextQuestion(opCtx, lesson, sess, difficulty)
	if err != nil {
		return nil, interrupted(ctx, opCtx, err)
	}
	if opCtx.Err() != nil {
		return nil, interrupted(ctx, opCtx, opCtx.Err())
	}

	sess.Attempts = []QuestionAttempt{first}
	sess.State = StateAwaitingAnswer
	sess.UpdatedAt = o.now()
	learner.LastActiveAt = sess.UpdatedAt
	learner.Archived = false

	if err := o.store.UpsertLearner(ctx, learner); err != nil {
		return nil, fmt.Errorf("save learner: %w", err)
	}
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	o.log.Info("lesson started",
		logging.Learner(learnerID),
		logging.Lesson(lessonID),
		zap.String("session_id", sess.ID),
		zap.String("difficulty", string(difficulty)))

	return sess.Clone(), nil
}

// SubmitAnswer scores the answer to the pending question of the
// learner's focus session and either issues the next question or decides
// the session. A failure at any step leaves the store untouched.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, learnerID, answer string) (_ *Result, err error) {
	ctx, span := o.startSpan(ctx, "tutor.SubmitAnswer", learnerID, "")
	defer func() { endSpan(span, err) }()

	focus, err := o.focus(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("tutor.lesson_id", focus.LessonID))

	release, err := o.locker.TryLock(ctx, lockKey(learnerID, focus.LessonID))
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	sess, err := o.store.GetActiveSession(ctx, learnerID, focus.LessonID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	pending := sess.Pending()
	if pending == nil {
		return nil, ErrNoActiveSession
	}
	lesson, ok := o.curriculum.Lesson(sess.LessonID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLesson, sess.LessonID)
	}

	opCtx, done := o.inflight.track(ctx, learnerID, sess.LessonID)
	defer done()

	sess.State = StateEvaluating
	ev, err := o.evaluate(opCtx, answer, pending.Rubric)
	if err != nil {
		return nil, interrupted(ctx, opCtx, err)
	}

	now := o.now()
	ans, score := answer, ev.Score
	pending.Answer = &ans
	pending.Score = &score
	pending.Feedback = ev.Feedback
	pending.Confidence = ev.Confidence
	pending.AnsweredAt = &now
	sess.State = StateDeciding
	sess.UpdatedAt = now

	var events []Event
	if ev.LowConfidence() {
		o.log.Warn("low confidence evaluation",
			logging.Learner(learnerID),
			logging.Lesson(lesson.ID),
			zap.Int("question", pending.Index+1),
			zap.Float64("score", ev.Score),
			zap.Float64("confidence", ev.Confidence))
		events = append(events, o.event(EventLowConfidence, sess, map[string]any{
			"question":   pending.Index + 1,
			"score":      ev.Score,
			"confidence": ev.Confidence,
		}))
	}

	res := &Result{Evaluation: ev}
	scores := sess.Scores()

	if len(scores) < lesson.QuestionCount {
		next, err := o.nextQuestion(opCtx, lesson, sess, pending.Difficulty)
		if err != nil {
			return nil, interrupted(ctx, opCtx, err)
		}
		if opCtx.Err() != nil {
			return nil, interrupted(ctx, opCtx, opCtx.Err())
		}
		sess.Attempts = append(sess.Attempts, next)
		sess.State = StateAwaitingAnswer
		if err := o.store.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		o.appendEvents(ctx, events)

		res.Outcome = OutcomeContinue
		res.Session = sess.Clone()
		res.Next = &res.Session.Attempts[len(res.Session.Attempts)-1]
		return res, nil
	}

	if opCtx.Err() != nil {
		return nil, interrupted(ctx, opCtx, opCtx.Err())
	}

	avg, _ := Mean(scores)
	prev, err := o.store.GetProgress(ctx, learnerID, lesson.ID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if prev == nil {
		prev = &ProgressRecord{LearnerID: learnerID, LessonID: lesson.ID}
	}
	outcome := Decide(avg, lesson.PassThreshold, *prev)
	rec := applyOutcome(*prev, avg, outcome, o.now)

	learner, err := o.loadLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	learner.LastActiveAt = now
	if outcome == OutcomePassed && lesson.Position >= learner.CurrentLesson {
		learner.CurrentLesson = lesson.Position + 1
	}

	payload := map[string]any{
		"average":   avg,
		"threshold": lesson.PassThreshold,
		"attempts":  rec.Attempts,
	}
	switch outcome {
	case OutcomePassed:
		events = append(events, o.event(EventLessonPassed, sess, payload))
	case OutcomeFailedRetry:
		events = append(events, o.event(EventLessonFailed, sess, payload))
	case OutcomeRemediation:
		payload["consecutive_failures"] = rec.ConsecutiveFailures
		events = append(events, o.event(EventRemediationRequired, sess, payload))
	}

	unlocked, err := o.unlockAchievements(ctx, sess, rec, now)
	if err != nil {
		return nil, err
	}
	for _, a := range unlocked {
		events = append(events, o.event(EventAchievement, sess, a.Payload()))
	}

	sess.State = StateIdle
	sess.Outcome = outcome
	sess.EndedAt = &now
	if err := o.store.CompleteSession(ctx, Completion{
		Session:  sess,
		Outcome:  outcome,
		Progress: rec,
		Learner:  learner,
		Events:   events,
	}); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	o.log.Info("lesson decided",
		logging.Learner(learnerID),
		logging.Lesson(lesson.ID),
		zap.String("outcome", string(outcome)),
		zap.Float64("average", avg),
		zap.Float64("threshold", lesson.PassThreshold))

	for _, a := range unlocked {
		o.log.Info("achievement unlocked",
			logging.Learner(learnerID),
			zap.String("achievement", a.ID))
	}

	res.Outcome = outcome
	res.Average = avg
	res.Achievements = unlocked
	res.Session = sess.Clone()
	if outcome == OutcomePassed {
		if next, ok := o.curriculum.Next(lesson.ID); ok {
			res.NextLesson = &next
		}
	}
	return res, nil
}

// AbandonSession cancels any operation running for the learner and
// archives their active sessions as abandoned. Each pair is archived
// under its lock, so an operation already past its last cancellation
// check commits first and is then archived. Calling it with nothing
// active is a no-op. It returns the sessions it archived.
func (o *Orchestrator) AbandonSession(ctx context.Context, learnerID string) (_ []Session, err error) {
	ctx, span := o.startSpan(ctx, "tutor.AbandonSession", learnerID, "")
	defer func() { endSpan(span, err) }()

	running := o.inflight.cancel(learnerID)
	if len(running) > 0 {
		o.log.Info("pre-empted running operations", logging.Learner(learnerID), zap.Strings("lessons", running))
	}

	active, err := o.store.ActiveSessions(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	lessons := make([]string, 0, len(active)+len(running))
	seen := make(map[string]bool, cap(lessons))
	for _, a := range active {
		if !seen[a.LessonID] {
			seen[a.LessonID] = true
			lessons = append(lessons, a.LessonID)
		}
	}
	for _, id := range running {
		if !seen[id] {
			seen[id] = true
			lessons = append(lessons, id)
		}
	}

	var out []Session
	for _, lessonID := range lessons {
		s, err := o.abandonOne(ctx, learnerID, lessonID)
		if err != nil {
			return out, err
		}
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (o *Orchestrator) abandonOne(ctx context.Context, learnerID, lessonID string) (*Session, error) {
	release, err := o.locker.Lock(ctx, lockKey(learnerID, lessonID))
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	s, err := o.store.GetActiveSession(ctx, learnerID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, nil
	}

	now := o.now()
	s.State = StateIdle
	s.Outcome = OutcomeAbandoned
	s.UpdatedAt = now
	s.EndedAt = &now
	if err := o.store.ArchiveSession(ctx, s, OutcomeAbandoned); err != nil {
		return nil, fmt.Errorf("archive session: %w", err)
	}
	o.appendEvents(ctx, []Event{o.event(EventSessionAbandoned, s, map[string]any{
		"answered": len(s.Scores()),
	})})

	o.log.Info("session abandoned",
		logging.Learner(learnerID),
		logging.Lesson(lessonID),
		zap.String("session_id", s.ID))
	return s, nil
}

// ArchiveLearner abandons the learner's active sessions and soft-archives
// the learner. Progress and history are kept; the next lesson start or
// /start reactivates them.
func (o *Orchestrator) ArchiveLearner(ctx context.Context, learnerID string) error {
	l, err := o.store.GetLearner(ctx, learnerID)
	if err != nil {
		return fmt.Errorf("load learner: %w", err)
	}
	if l == nil {
		return fmt.Errorf("learner %q: %w", learnerID, ErrUnknownLearner)
	}
	if _, err := o.AbandonSession(ctx, learnerID); err != nil {
		return err
	}
	l.Archived = true
	if err := o.store.UpsertLearner(ctx, l); err != nil {
		return fmt.Errorf("save learner: %w", err)
	}
	o.log.Info("learner archived", logging.Learner(learnerID))
	return nil
}

// ResumeSession returns the learner's focus session so its pending
// question can be asked again.
func (o *Orchestrator) ResumeSession(ctx context.Context, learnerID string) (*Session, error) {
	return o.focus(ctx, learnerID)
}

// RetryLesson starts a new session for the lesson of the learner's most
// recently decided session.
func (o *Orchestrator) RetryLesson(ctx context.Context, learnerID string) (*Session, error) {
	history, err := o.store.SessionHistory(ctx, learnerID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for _, s := range history {
		if s.Outcome.Completed() {
			return o.StartLesson(ctx, learnerID, s.LessonID)
		}
	}
	return nil, ErrNothingToRetry
}

// CurrentLesson is the first unlocked lesson the learner has not passed,
// or the last lesson once the whole path is done.
func (o *Orchestrator) CurrentLesson(ctx context.Context, learnerID string) (curriculum.Lesson, error) {
	learner, err := o.loadLearner(ctx, learnerID)
	if err != nil {
		return curriculum.Lesson{}, err
	}
	lessons := o.curriculum.Lessons()
	pos := min(max(learner.CurrentLesson, 1), len(lessons))
	return lessons[pos-1], nil
}

func (o *Orchestrator) focus(ctx context.Context, learnerID string) (*Session, error) {
	active, err := o.store.ActiveSessions(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveSession
	}
	return &active[0], nil
}

func (o *Orchestrator) loadLearner(ctx context.Context, learnerID string) (*Learner, error) {
	l, err := o.store.GetLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load learner: %w", err)
	}
	if l == nil {
		now := o.now()
		l = &Learner{ID: learnerID, CurrentLesson: 1, CreatedAt: now, LastActiveAt: now}
	}
	if l.CurrentLesson < 1 {
		l.CurrentLesson = 1
	}
	return l, nil
}

// evaluate scores an answer. An out-of-range score is discarded and the
// evaluation asked once more before giving up.
func (o *Orchestrator) evaluate(ctx context.Context, answer string, rubric questiongen.Rubric) (evaluator.Evaluation, error) {
	for try := 0; ; try++ {
		var ev evaluator.Evaluation
		err := o.retry(ctx, "evaluate", func(ctx context.Context) error {
			var err error
			ev, err = o.evaluator.Evaluate(ctx, answer, rubric)
			return err
		})
		if err != nil {
			return evaluator.Evaluation{}, err
		}
		if ValidScore(ev.Score) {
			return ev, nil
		}

		invalid := fmt.Errorf("%w: %.2f", ErrInvalidScore, ev.Score)
		if try >= 1 {
			return evaluator.Evaluation{}, fmt.Errorf("%w: evaluate: %w", ErrServiceUnavailable, invalid)
		}
		o.log.Warn("discarding out-of-range score", zap.Float64("score", ev.Score))
	}
}

func (o *Orchestrator) event(kind string, s *Session, payload map[string]any) Event {
	return Event{
		Kind:      kind,
		LearnerID: s.LearnerID,
		LessonID:  s.LessonID,
		SessionID: s.ID,
		Payload:   payload,
		At:        o.now(),
	}
}

// appendEvents records audit events. Failures are logged only.
func (o *Orchestrator) appendEvents(ctx context.Context, events []Event) {
	for _, e := range events {
		if err := o.store.AppendEvent(ctx, e); err != nil {
			o.log.Warn("failed to record event", zap.String("kind", e.Kind), zap.Error(err))
		}
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name, learnerID, lessonID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("tutor.learner_id", learnerID)}
	if lessonID != "" {
		attrs = append(attrs, attribute.String("tutor.lesson_id", lessonID))
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func lockKey(learnerID, lessonID string) string {
	return learnerID + "/" + lessonID
}

func lockError(err error) error {
	if errors.Is(err, keylock.ErrLocked) {
		return fmt.Errorf("%w: another operation is running", ErrSessionConflict)
	}
	return fmt.Errorf("acquire lock: %w", err)
}

// interrupted maps the error of an operation whose context may have been
// cancelled by an abandon.
func interrupted(parent, op context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if op.Err() != nil {
		return ErrCancelled
	}
	return err
}
