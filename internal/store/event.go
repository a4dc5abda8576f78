package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/tutorbot/internal/achievement"
	"github.com/abhisek/tutorbot/internal/tutor"
)

// sequenceCounter hands out one global, monotonic sequence shared by the
// events and llm_requests tables so their rows interleave in order.
// The UPDATE ... RETURNING is atomic under SQLite's single writer, so no
// process-level lock is taken: one would deadlock against an open
// transaction holding the write lock.
type sequenceCounter struct{}

func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}
	_, err = db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`)
	if err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}
	return &sequenceCounter{}, nil
}

// Next returns the next sequence number. q must be the transaction the
// row is written in, if any.
func (sc *sequenceCounter) Next(ctx context.Context, q querier) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// QueryOpts filters and pages event queries.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

func (o QueryOpts) predicates() []*entsql.Predicate {
	var preds []*entsql.Predicate
	if o.After > 0 {
		preds = append(preds, entsql.GT("sequence", o.After))
	}
	if o.Before > 0 {
		preds = append(preds, entsql.LT("sequence", o.Before))
	}
	if !o.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", o.From.UnixMilli()))
	}
	if !o.To.IsZero() {
		preds = append(preds, entsql.LTE("created_at", o.To.UnixMilli()))
	}
	return preds
}

// EventRecord is a stored audit event.
type EventRecord struct {
	Sequence int64
	tutor.Event
}

// AppendEvent records an audit event.
func (s *Store) AppendEvent(ctx context.Context, e tutor.Event) error {
	return appendEvent(ctx, s.db, s.seq, e)
}

func appendEvent(ctx context.Context, q querier, seq *sequenceCounter, e tutor.Event) error {
	n, err := seq.Next(ctx, q)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", e.Kind, err)
	}
	if e.Payload == nil {
		payload = []byte("{}")
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	query, args := entsql.Dialect(dialect.SQLite).
		Insert("events").
		Columns("sequence", "kind", "learner_id", "lesson_id", "session_id", "payload", "created_at").
		Values(n, e.Kind, e.LearnerID, e.LessonID, e.SessionID, string(payload), millis(at)).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save %s event: %w", e.Kind, err)
	}
	return nil
}

// ListEvents returns a learner's events in sequence order. An empty
// learnerID lists events of every learner.
func (s *Store) ListEvents(ctx context.Context, learnerID string, opts QueryOpts) ([]EventRecord, error) {
	preds := opts.predicates()
	if learnerID != "" {
		preds = append(preds, entsql.EQ("learner_id", learnerID))
	}
	sel := entsql.Dialect(dialect.SQLite).
		Select("sequence", "kind", "learner_id", "lesson_id", "session_id", "payload", "created_at").
		From(entsql.Table("events")).
		OrderBy("sequence")
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			r       EventRecord
			payload string
			at      int64
		)
		if err := rows.Scan(&r.Sequence, &r.Kind, &r.LearnerID, &r.LessonID, &r.SessionID, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", r.Sequence, err)
		}
		r.At = fromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Achievements returns the learner's unlocked achievements, oldest
// first. A repeated unlock keeps its first record.
func (s *Store) Achievements(ctx context.Context, learnerID string) ([]achievement.Award, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("session_id", "payload", "created_at").
		From(entsql.Table("events")).
		Where(entsql.And(
			entsql.EQ("learner_id", learnerID),
			entsql.EQ("kind", tutor.EventAchievement),
		)).
		OrderBy("sequence").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.Award
	seen := make(map[string]bool)
	for rows.Next() {
		var (
			sessionID, payload string
			at                 int64
			p                  map[string]any
		)
		if err := rows.Scan(&sessionID, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode achievement payload: %w", err)
		}
		a, ok := achievement.FromPayload(p, sessionID, fromMillis(at))
		if !ok || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, rows.Err()
}
