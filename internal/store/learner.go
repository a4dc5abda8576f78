package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/tutorbot/internal/tutor"
)

var learnerColumns = []string{"id", "display_name", "current_lesson", "archived", "created_at", "last_active_at"}

// GetLearner returns the learner, or nil if unknown.
func (s *Store) GetLearner(ctx context.Context, id string) (*tutor.Learner, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(learnerColumns...).From(entsql.Table("learners")).
		Where(entsql.EQ("id", id)).
		Query()
	l, err := scanLearner(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get learner %s: %w", id, err)
	}
	return l, nil
}

// ListLearners returns every learner, most recently active first.
func (s *Store) ListLearners(ctx context.Context) ([]tutor.Learner, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(learnerColumns...).From(entsql.Table("learners")).
		OrderBy(entsql.Desc("last_active_at")).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	defer rows.Close()

	var out []tutor.Learner
	for rows.Next() {
		l, err := scanLearner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan learner: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// UpsertLearner creates or replaces the learner.
func (s *Store) UpsertLearner(ctx context.Context, l *tutor.Learner) error {
	return upsertLearner(ctx, s.db, l)
}

func upsertLearner(ctx context.Context, q querier, l *tutor.Learner) error {
	query, args := entsql.Dialect(dialect.SQLite).
		Insert("learners").
		Columns(learnerColumns...).
		Values(l.ID, l.DisplayName, l.CurrentLesson, boolInt(l.Archived), millis(l.CreatedAt), millis(l.LastActiveAt)).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert learner %s: %w", l.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLearner(r rowScanner) (*tutor.Learner, error) {
	var (
		l                 tutor.Learner
		archived          int
		created, lastSeen int64
	)
	if err := r.Scan(&l.ID, &l.DisplayName, &l.CurrentLesson, &archived, &created, &lastSeen); err != nil {
		return nil, err
	}
	l.Archived = archived != 0
	l.CreatedAt = fromMillis(created)
	l.LastActiveAt = fromMillis(lastSeen)
	return &l, nil
}
