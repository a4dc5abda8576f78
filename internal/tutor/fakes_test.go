package tutor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbot/internal/achievement"
	"github.com/abhisek/tutorbot/internal/curriculum"
	"github.com/abhisek/tutorbot/internal/evaluator"
	"github.com/abhisek/tutorbot/internal/knowledge"
	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/questiongen"
)

const testCurriculumYAML = `
version: v1.0.0
title: Test course
lessons:
  - id: basics
    topic: risk_basics
    title: Basics
  - id: criticality
    topic: process_criticality
    title: Criticality
    questions: 2
  - id: assessment
    topic: risk_assessment
    title: Assessment
`

func testCurriculum(t *testing.T) *curriculum.Curriculum {
	t.Helper()
	c, err := curriculum.Parse([]byte(testCurriculumYAML), curriculum.Defaults{QuestionsPerLesson: 3, MinScoreToPass: 80})
	require.NoError(t, err)
	return c
}

// memStore is an in-memory ProgressStore that counts writes.
type memStore struct {
	mu       sync.Mutex
	learners map[string]Learner
	progress map[string]ProgressRecord
	active   map[string]*Session
	history  []Session
	events   []Event
	writes   int

	// beforeUpsertLearner, when set, runs ahead of every learner write.
	beforeUpsertLearner func()
}

func newMemStore() *memStore {
	return &memStore{
		learners: make(map[string]Learner),
		progress: make(map[string]ProgressRecord),
		active:   make(map[string]*Session),
	}
}

func pair(learnerID, lessonID string) string { return learnerID + "|" + lessonID }

func (m *memStore) GetLearner(_ context.Context, id string) (*Learner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.learners[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *memStore) UpsertLearner(_ context.Context, l *Learner) error {
	if m.beforeUpsertLearner != nil {
		m.beforeUpsertLearner()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.learners[l.ID] = *l
	return nil
}

func (m *memStore) GetProgress(_ context.Context, learnerID, lessonID string) (*ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.progress[pair(learnerID, lessonID)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) ListProgress(_ context.Context, learnerID string) ([]ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProgressRecord
	for _, r := range m.progress {
		if r.LearnerID == learnerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpsertProgress(_ context.Context, r ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.progress[pair(r.LearnerID, r.LessonID)] = r
	return nil
}

func (m *memStore) GetActiveSession(_ context.Context, learnerID, lessonID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[pair(learnerID, lessonID)]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memStore) ActiveSessions(_ context.Context, learnerID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.active {
		if s.LearnerID == learnerID {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memStore) SaveSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.active[pair(s.LearnerID, s.LessonID)] = s.Clone()
	return nil
}

func (m *memStore) ArchiveSession(_ context.Context, s *Session, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveLocked(s, outcome)
	return nil
}

func (m *memStore) archiveLocked(s *Session, outcome Outcome) {
	m.writes++
	c := s.Clone()
	c.Outcome = outcome
	delete(m.active, pair(s.LearnerID, s.LessonID))
	m.history = append([]Session{*c}, m.history...)
}

func (m *memStore) CompleteSession(_ context.Context, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveLocked(c.Session, c.Outcome)
	m.progress[pair(c.Progress.LearnerID, c.Progress.LessonID)] = c.Progress
	if c.Learner != nil {
		m.learners[c.Learner.ID] = *c.Learner
	}
	m.events = append(m.events, c.Events...)
	return nil
}

func (m *memStore) SessionHistory(_ context.Context, learnerID string, limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.history {
		if s.LearnerID == learnerID {
			out = append(out, s)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) AppendEvent(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) Achievements(_ context.Context, learnerID string) ([]achievement.Award, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []achievement.Award
	seen := make(map[string]bool)
	for _, e := range m.events {
		if e.Kind != EventAchievement || e.LearnerID != learnerID {
			continue
		}
		a, ok := achievement.FromPayload(e.Payload, e.SessionID, e.At)
		if ok && !seen[a.ID] {
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) eventKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

// fakeGenerator numbers its questions. hook, when set, runs first and
// may block or fail a call.
type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	inputs []questiongen.Input
	hook   func(ctx context.Context, n int) error
}

func (g *fakeGenerator) Generate(ctx context.Context, in questiongen.Input) (*questiongen.Question, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.inputs = append(g.inputs, in)
	hook := g.hook
	g.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return nil, err
		}
	}
	text := fmt.Sprintf("%s question %d", in.Lesson.ID, n)
	return &questiongen.Question{
		Text:       text,
		Difficulty: in.Difficulty,
		Rubric: questiongen.Rubric{
			Question:        text,
			KeyPoints:       []string{"identify the risk"},
			ReferenceAnswer: "reference",
			SourcePassageID: in.Passage.ID,
		},
	}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeEvaluator returns scores in order.
type fakeEvaluator struct {
	mu         sync.Mutex
	scores     []float64
	calls      int
	confidence float64
	hook       func(ctx context.Context, n int) error
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, answer string, _ questiongen.Rubric) (evaluator.Evaluation, error) {
	e.mu.Lock()
	n := e.calls
	e.calls++
	hook := e.hook
	e.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return evaluator.Evaluation{}, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.scores) == 0 {
		return evaluator.Evaluation{}, fmt.Errorf("no score scripted for %q", answer)
	}
	score := e.scores[0]
	e.scores = e.scores[1:]
	conf := e.confidence
	if conf == 0 {
		conf = 0.9
	}
	return evaluator.Evaluation{Score: score, Feedback: "ok", Confidence: conf}, nil
}

func (e *fakeEvaluator) push(scores ...float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scores = append(e.scores, scores...)
}

func (e *fakeEvaluator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeRetriever struct {
	passages []knowledge.Passage
	err      error
}

func (r *fakeRetriever) Retrieve(_ context.Context, topic string, k int) ([]knowledge.Passage, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []knowledge.Passage
	for _, p := range r.passages {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

type harness struct {
	orch  *Orchestrator
	store *memStore
	gen   *fakeGenerator
	eval  *fakeEvaluator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newMemStore(),
		gen:   &fakeGenerator{},
		eval:  &fakeEvaluator{},
	}
	retriever := &fakeRetriever{passages: []knowledge.Passage{
		{ID: "p1", Topic: "risk_basics", Text: "Q: a\nA: b", Difficulty: "beginner"},
		{ID: "p2", Topic: "risk_basics", Text: "Q: c\nA: d", Difficulty: "advanced"},
	}}
	var (
		mu  sync.Mutex
		ids int
		now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	)
	h.orch = New(testCurriculum(t), h.store, retriever, h.gen, h.eval, Options{
		ServiceRetries: 2,
		Backoff:        llm.RetryConfig{},
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Minute)
			return now
		},
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			ids++
			return fmt.Sprintf("s%d", ids)
		},
	})
	return h
}

// runLesson starts lessonID and answers every question with the given
// scores, returning the final result.
func (h *harness) runLesson(t *testing.T, learnerID, lessonID string, scores ...float64) *Result {
	t.Helper()
	_, err := h.orch.StartLesson(context.Background(), learnerID, lessonID)
	require.NoError(t, err)
	h.eval.push(scores...)

	var res *Result
	for i := range scores {
		res, err = h.orch.SubmitAnswer(context.Background(), learnerID, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
	}
	return res
}
