package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/tutorbot/internal/questiongen"
	"github.com/abhisek/tutorbot/internal/tutor"
)

var sessionColumns = []string{
	"id", "learner_id", "lesson_id", "state", "outcome", "active",
	"attempts", "started_at", "updated_at", "ended_at",
}

// attemptRecord is the JSON form of a question attempt.
type attemptRecord struct {
	Index      int                `json:"index"`
	Question   string             `json:"question"`
	Rubric     questiongen.Rubric `json:"rubric"`
	Difficulty string             `json:"difficulty,omitempty"`
	Answer     *string            `json:"answer,omitempty"`
	Score      *float64           `json:"score,omitempty"`
	Feedback   string             `json:"feedback,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	AskedAt    int64              `json:"asked_at"`
	AnsweredAt *int64             `json:"answered_at,omitempty"`
}

func encodeAttempts(attempts []tutor.QuestionAttempt) (string, error) {
	recs := make([]attemptRecord, len(attempts))
	for i, a := range attempts {
		recs[i] = attemptRecord{
			Index:      a.Index,
			Question:   a.Question,
			Rubric:     a.Rubric,
			Difficulty: string(a.Difficulty),
			Answer:     a.Answer,
			Score:      a.Score,
			Feedback:   a.Feedback,
			Confidence: a.Confidence,
			AskedAt:    millis(a.AskedAt),
		}
		if a.AnsweredAt != nil {
			ms := a.AnsweredAt.UnixMilli()
			recs[i].AnsweredAt = &ms
		}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeAttempts(data string) ([]tutor.QuestionAttempt, error) {
	var recs []attemptRecord
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return nil, err
	}
	out := make([]tutor.QuestionAttempt, len(recs))
	for i, r := range recs {
		out[i] = tutor.QuestionAttempt{
			Index:      r.Index,
			Question:   r.Question,
			Rubric:     r.Rubric,
			Difficulty: questiongen.Difficulty(r.Difficulty),
			Answer:     r.Answer,
			Score:      r.Score,
			Feedback:   r.Feedback,
			Confidence: r.Confidence,
			AskedAt:    fromMillis(r.AskedAt),
		}
		if r.AnsweredAt != nil {
			t := fromMillis(*r.AnsweredAt)
			out[i].AnsweredAt = &t
		}
	}
	return out, nil
}

// GetActiveSession returns the pair's active session, or nil.
func (s *Store) GetActiveSession(ctx context.Context, learnerID, lessonID string) (*tutor.Session, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(sessionColumns...).From(entsql.Table("sessions")).
		Where(entsql.And(
			entsql.EQ("learner_id", learnerID),
			entsql.EQ("lesson_id", lessonID),
			entsql.EQ("active", 1),
		)).
		Query()
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session %s/%s: %w", learnerID, lessonID, err)
	}
	return sess, nil
}

// ActiveSessions returns the learner's active sessions, most recently
// updated first.
func (s *Store) ActiveSessions(ctx context.Context, learnerID string) ([]tutor.Session, error) {
	return s.listSessions(ctx, learnerID, true, 0)
}

// SessionHistory returns archived sessions, newest first.
func (s *Store) SessionHistory(ctx context.Context, learnerID string, limit int) ([]tutor.Session, error) {
	return s.listSessions(ctx, learnerID, false, limit)
}

func (s *Store) listSessions(ctx context.Context, learnerID string, active bool, limit int) ([]tutor.Session, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(sessionColumns...).From(entsql.Table("sessions")).
		Where(entsql.And(entsql.EQ("learner_id", learnerID), entsql.EQ("active", boolInt(active)))).
		OrderBy(entsql.Desc("updated_at"), entsql.Desc("started_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []tutor.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// SaveSession writes an active session. A second active session for the
// same pair is rejected with tutor.ErrSessionConflict.
func (s *Store) SaveSession(ctx context.Context, sess *tutor.Session) error {
	return saveSession(ctx, s.db, sess, true)
}

// ArchiveSession marks the session inactive with the given outcome.
func (s *Store) ArchiveSession(ctx context.Context, sess *tutor.Session, outcome tutor.Outcome) error {
	c := *sess
	c.Outcome = outcome
	return saveSession(ctx, s.db, &c, false)
}

// CompleteSession archives the decided session and writes the progress
// record, the learner and the events atomically.
func (s *Store) CompleteSession(ctx context.Context, c tutor.Completion) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if c.Learner != nil {
			if err := upsertLearner(ctx, tx, c.Learner); err != nil {
				return err
			}
		}
		sess := *c.Session
		sess.Outcome = c.Outcome
		if err := saveSession(ctx, tx, &sess, false); err != nil {
			return err
		}
		if err := upsertProgress(ctx, tx, c.Progress); err != nil {
			return err
		}
		for _, e := range c.Events {
			if err := appendEvent(ctx, tx, s.seq, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveSession(ctx context.Context, q querier, sess *tutor.Session, active bool) error {
	attempts, err := encodeAttempts(sess.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Insert("sessions").
		Columns(sessionColumns...).
		Values(
			sess.ID, sess.LearnerID, sess.LessonID, string(sess.State), string(sess.Outcome), boolInt(active),
			attempts, millis(sess.StartedAt), millis(sess.UpdatedAt), nullMillis(sess.EndedAt),
		).
		// Archived sessions are final: an update that arrives after the
		// session left the active set changes nothing.
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
			entsql.UpdateWhere(entsql.EQ("active", 1)),
		).
		Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save session %s: %w", sess.ID, tutor.ErrSessionConflict)
		}
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save session %s: already archived: %w", sess.ID, tutor.ErrNoActiveSession)
	}
	return nil
}

func scanSession(r rowScanner) (*tutor.Session, error) {
	var (
		sess             tutor.Session
		state, outcome   string
		active           int
		attempts         string
		started, updated int64
		ended            sql.NullInt64
	)
	err := r.Scan(&sess.ID, &sess.LearnerID, &sess.LessonID, &state, &outcome, &active,
		&attempts, &started, &updated, &ended)
	if err != nil {
		return nil, err
	}
	sess.State = tutor.State(state)
	sess.Outcome = tutor.Outcome(outcome)
	sess.StartedAt = fromMillis(started)
	sess.UpdatedAt = fromMillis(updated)
	sess.EndedAt = fromNullMillis(ended)
	if sess.Attempts, err = decodeAttempts(attempts); err != nil {
		return nil, fmt.Errorf("decode attempts of %s: %w", sess.ID, err)
	}
	return &sess, nil
}
