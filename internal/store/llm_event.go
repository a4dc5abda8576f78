package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/tutorbot/internal/llm"
)

// LLMRequest is a stored provider call.
type LLMRequest struct {
	Sequence  int64
	Timestamp time.Time
	llm.RequestEvent
}

var llmColumns = []string{
	"sequence", "provider", "model", "purpose", "input_tokens", "output_tokens",
	"latency_ms", "success", "error_message", "request_body", "response_body", "created_at",
}

// AppendLLMRequest records a provider call.
func (s *Store) AppendLLMRequest(ctx context.Context, e llm.RequestEvent) error {
	n, err := s.seq.Next(ctx, s.db)
	if err != nil {
		return err
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Insert("llm_requests").
		Columns(llmColumns...).
		Values(
			n, e.Provider, e.Model, e.Purpose, e.InputTokens, e.OutputTokens,
			e.LatencyMs, boolInt(e.Success), e.ErrorMessage, e.RequestBody, e.ResponseBody,
			millis(time.Now()),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

// ListLLMRequests returns provider calls, newest first.
func (s *Store) ListLLMRequests(ctx context.Context, opts QueryOpts) ([]LLMRequest, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(llmColumns...).From(entsql.Table("llm_requests")).
		OrderBy(entsql.Desc("sequence"))
	if preds := opts.predicates(); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM requests: %w", err)
	}
	defer rows.Close()

	var out []LLMRequest
	for rows.Next() {
		r, err := scanLLMRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan LLM request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// LLMRequest returns one provider call by sequence, or nil.
func (s *Store) LLMRequest(ctx context.Context, seq int64) (*LLMRequest, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(llmColumns...).From(entsql.Table("llm_requests")).
		Where(entsql.EQ("sequence", seq)).
		Query()
	r, err := scanLLMRequest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get LLM request %d: %w", seq, err)
	}
	return r, nil
}

func scanLLMRequest(r rowScanner) (*LLMRequest, error) {
	var (
		req     LLMRequest
		success int
		at      int64
	)
	err := r.Scan(&req.Sequence, &req.Provider, &req.Model, &req.Purpose, &req.InputTokens, &req.OutputTokens,
		&req.LatencyMs, &success, &req.ErrorMessage, &req.RequestBody, &req.ResponseBody, &at)
	if err != nil {
		return nil, err
	}
	req.Success = success != 0
	req.Timestamp = fromMillis(at)
	return &req, nil
}

// LLMUsage aggregates provider calls for one purpose.
type LLMUsage struct {
	Purpose      string
	Calls        int
	Failures     int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// LLMUsageByPurpose sums recorded provider calls per purpose.
func (s *Store) LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(
			"purpose",
			entsql.Count("*"),
			"SUM(1 - success)",
			entsql.Sum("input_tokens"),
			entsql.Sum("output_tokens"),
			entsql.Avg("latency_ms"),
		).
		From(entsql.Table("llm_requests")).
		GroupBy("purpose").
		OrderBy("purpose").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM usage: %w", err)
	}
	defer rows.Close()

	var out []LLMUsage
	for rows.Next() {
		var (
			u   LLMUsage
			avg float64
		)
		if err := rows.Scan(&u.Purpose, &u.Calls, &u.Failures, &u.InputTokens, &u.OutputTokens, &avg); err != nil {
			return nil, fmt.Errorf("scan LLM usage: %w", err)
		}
		u.AvgLatencyMs = int64(avg)
		out = append(out, u)
	}
	return out, rows.Err()
}
