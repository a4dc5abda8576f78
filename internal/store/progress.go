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

var progressColumns = []string{
	"learner_id", "lesson_id", "attempts", "best_average", "last_average",
	"passed", "passed_at", "consecutive_failures", "remediation_required", "updated_at",
}

// GetProgress returns the record for the pair, or nil if the lesson was
// never completed.
func (s *Store) GetProgress(ctx context.Context, learnerID, lessonID string) (*tutor.ProgressRecord, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(progressColumns...).From(entsql.Table("progress")).
		Where(entsql.And(entsql.EQ("learner_id", learnerID), entsql.EQ("lesson_id", lessonID))).
		Query()
	rec, err := scanProgress(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s/%s: %w", learnerID, lessonID, err)
	}
	return rec, nil
}

// ListProgress returns every record of the learner.
func (s *Store) ListProgress(ctx context.Context, learnerID string) ([]tutor.ProgressRecord, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(progressColumns...).From(entsql.Table("progress")).
		Where(entsql.EQ("learner_id", learnerID)).
		OrderBy("lesson_id").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []tutor.ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// UpsertProgress creates or replaces the record for its pair.
func (s *Store) UpsertProgress(ctx context.Context, rec tutor.ProgressRecord) error {
	return upsertProgress(ctx, s.db, rec)
}

func upsertProgress(ctx context.Context, q querier, rec tutor.ProgressRecord) error {
	query, args := entsql.Dialect(dialect.SQLite).
		Insert("progress").
		Columns(progressColumns...).
		Values(
			rec.LearnerID, rec.LessonID, rec.Attempts, rec.BestAverage, rec.LastAverage,
			boolInt(rec.Passed), nullMillis(rec.PassedAt), rec.ConsecutiveFailures,
			boolInt(rec.RemediationRequired), millis(rec.UpdatedAt),
		).
		OnConflict(entsql.ConflictColumns("learner_id", "lesson_id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert progress %s/%s: %w", rec.LearnerID, rec.LessonID, err)
	}
	return nil
}

func scanProgress(r rowScanner) (*tutor.ProgressRecord, error) {
	var (
		rec                 tutor.ProgressRecord
		passed, remediation int
		passedAt            sql.NullInt64
		updated             int64
	)
	err := r.Scan(&rec.LearnerID, &rec.LessonID, &rec.Attempts, &rec.BestAverage, &rec.LastAverage,
		&passed, &passedAt, &rec.ConsecutiveFailures, &remediation, &updated)
	if err != nil {
		return nil, err
	}
	rec.Passed = passed != 0
	rec.PassedAt = fromNullMillis(passedAt)
	rec.RemediationRequired = remediation != 0
	rec.UpdatedAt = fromMillis(updated)
	return &rec, nil
}
