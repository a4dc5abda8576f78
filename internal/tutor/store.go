package tutor

import (
	"context"

	"github.com/abhisek/tutorbot/internal/achievement"
	"github.com/abhisek/tutorbot/internal/knowledge"
)

// ProgressStore persists learners, sessions and progress. Each method is
// atomic. Getters return nil with a nil error when nothing is stored.
type ProgressStore interface {
	GetLearner(ctx context.Context, learnerID string) (*Learner, error)
	UpsertLearner(ctx context.Context, l *Learner) error

	GetProgress(ctx context.Context, learnerID, lessonID string) (*ProgressRecord, error)
	ListProgress(ctx context.Context, learnerID string) ([]ProgressRecord, error)
	UpsertProgress(ctx context.Context, rec ProgressRecord) error

	// GetActiveSession returns the non-archived session for the pair.
	GetActiveSession(ctx context.Context, learnerID, lessonID string) (*Session, error)

	// ActiveSessions returns the learner's non-archived sessions, most
	// recently updated first.
	ActiveSessions(ctx context.Context, learnerID string) ([]Session, error)

	SaveSession(ctx context.Context, s *Session) error
	ArchiveSession(ctx context.Context, s *Session, outcome Outcome) error

	// CompleteSession archives the session, writes the progress record,
	// the learner and the events in one transaction.
	CompleteSession(ctx context.Context, c Completion) error

	// SessionHistory lists archived sessions, newest first. limit <= 0
	// means all of them.
	SessionHistory(ctx context.Context, learnerID string, limit int) ([]Session, error)

	AppendEvent(ctx context.Context, e Event) error

	// Achievements lists the learner's unlocked achievements, oldest
	// first, each once.
	Achievements(ctx context.Context, learnerID string) ([]achievement.Award, error)
}

// Retriever finds knowledge passages for a curriculum topic.
type Retriever interface {
	Retrieve(ctx context.Context, topic string, k int) ([]knowledge.Passage, error)
}
