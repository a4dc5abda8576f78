package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/sqlite"
)

// IndexFile is the index database name inside the vector directory.
const IndexFile = "knowledge.db"

const embedBatchSize = 64

const passagesDDL = `CREATE TABLE IF NOT EXISTS passages (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	lesson TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	model TEXT NOT NULL,
	embedding BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS passages_topic_model ON passages (topic, model);`

var passageColumns = []string{
	"id", "topic", "lesson", "difficulty", "keywords", "prompt", "response", "body", "embedding",
}

// Index stores passages with their embeddings in SQLite and ranks them
// by cosine similarity. It is safe for concurrent use.
type Index struct {
	db       *sql.DB
	embedder llm.Embedder
	log      *zap.Logger
	own      bool
}

// OpenIndex opens (or creates) the index in dir.
func OpenIndex(dir string, embedder llm.Embedder, log *zap.Logger) (*Index, error) {
	db, err := sqlite.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("open knowledge index: %w", err)
	}
	idx, err := NewIndex(db, embedder, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.own = true
	return idx, nil
}

// NewIndex uses an already open database. The caller keeps ownership
// of db.
func NewIndex(db *sql.DB, embedder llm.Embedder, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := db.Exec(passagesDDL); err != nil {
		return nil, fmt.Errorf("create passages table: %w", err)
	}
	return &Index{db: db, embedder: embedder, log: log}, nil
}

// Close closes the database if the index opened it.
func (x *Index) Close() error {
	if x.own {
		return x.db.Close()
	}
	return nil
}

// Add embeds and stores docs, skipping any whose content is already
// indexed. It returns how many passages were new.
func (x *Index) Add(ctx context.Context, docs []Document) (int, error) {
	fresh := make([]Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		id := PassageID(d.text())
		if seen[id] {
			continue
		}
		seen[id] = true
		exists, err := x.has(ctx, id)
		if err != nil {
			return 0, err
		}
		if !exists {
			fresh = append(fresh, d)
		}
	}

	added := 0
	for start := 0; start < len(fresh); start += embedBatchSize {
		end := min(start+embedBatchSize, len(fresh))
		n, err := x.addBatch(ctx, fresh[start:end])
		added += n
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

func (x *Index) addBatch(ctx context.Context, docs []Document) (int, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.text()
	}
	vecs, err := x.embedder.Embed(llm.WithPurpose(ctx, llm.PurposeEmbed), texts)
	if err != nil {
		return 0, fmt.Errorf("embed passages: %w", err)
	}

	ins := entsql.Dialect(dialect.SQLite).
		Insert("passages").
		Columns(append(passageColumns, "model", "created_at")...)
	now := time.Now().UTC()
	for i, d := range docs {
		blob, err := cbor.Marshal(vecs[i])
		if err != nil {
			return 0, fmt.Errorf("encode embedding: %w", err)
		}
		ins.Values(
			PassageID(texts[i]), d.Topic, d.Lesson, d.Difficulty, strings.Join(d.Keywords, ","),
			d.Prompt, d.Response, texts[i], blob, x.embedder.ModelID(), now,
		)
	}
	ins.OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing())

	query, args := ins.Query()
	res, err := x.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert passages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (x *Index) has(ctx context.Context, id string) (bool, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("id").From(entsql.Table("passages")).
		Where(entsql.EQ("id", id)).
		Query()
	var got string
	err := x.db.QueryRowContext(ctx, query, args...).Scan(&got)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup passage %s: %w", id, err)
	}
	return true, nil
}

// Retrieve returns up to k passages tagged with topic, best match first.
// An unknown topic yields no passages and no error.
func (x *Index) Retrieve(ctx context.Context, topic string, k int) ([]Passage, error) {
	return x.Search(ctx, humanizeTopic(topic), k, topic)
}

// Search ranks passages against query. A non-empty topic restricts the
// candidates to that topic.
func (x *Index) Search(ctx context.Context, query string, k int, topic string) ([]Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := x.embedder.Embed(llm.WithPurpose(ctx, llm.PurposeEmbed), []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := vecs[0]

	preds := []*entsql.Predicate{entsql.EQ("model", x.embedder.ModelID())}
	if topic != "" {
		preds = append(preds, entsql.EQ("topic", topic))
	}
	stmt, args := entsql.Dialect(dialect.SQLite).
		Select(passageColumns...).From(entsql.Table("passages")).
		Where(entsql.And(preds...)).
		Query()

	rows, err := x.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var (
			p        Passage
			keywords string
			blob     []byte
		)
		if err := rows.Scan(&p.ID, &p.Topic, &p.Lesson, &p.Difficulty, &keywords, &p.Prompt, &p.Response, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		var vec []float32
		if err := cbor.Unmarshal(blob, &vec); err != nil {
			x.log.Warn("skipping passage with corrupt embedding", zap.String("passage_id", p.ID), zap.Error(err))
			continue
		}
		if keywords != "" {
			p.Keywords = strings.Split(keywords, ",")
		}
		p.Score = cosine(q, vec)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Topics lists the distinct topics in the index.
func (x *Index) Topics(ctx context.Context) ([]string, error) {
	stmt, args := entsql.Dialect(dialect.SQLite).
		Select("topic").From(entsql.Table("passages")).
		Distinct().
		OrderBy("topic").
		Query()
	rows, err := x.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Count returns the number of indexed passages.
func (x *Index) Count(ctx context.Context) (int, error) {
	stmt, args := entsql.Dialect(dialect.SQLite).
		Select(entsql.Count("*")).From(entsql.Table("passages")).
		Query()
	var n int
	if err := x.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}

// Reembed recomputes embeddings of passages written by a different model
// than the current embedder. It returns how many were updated.
func (x *Index) Reembed(ctx context.Context) (int, error) {
	stmt, args := entsql.Dialect(dialect.SQLite).
		Select("id", "body").From(entsql.Table("passages")).
		Where(entsql.NEQ("model", x.embedder.ModelID())).
		Query()
	rows, err := x.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("query stale passages: %w", err)
	}
	var ids, texts []string
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		texts = append(texts, body)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	updated := 0
	for start := 0; start < len(ids); start += embedBatchSize {
		end := min(start+embedBatchSize, len(ids))
		vecs, err := x.embedder.Embed(llm.WithPurpose(ctx, llm.PurposeEmbed), texts[start:end])
		if err != nil {
			return updated, fmt.Errorf("embed passages: %w", err)
		}
		for i, vec := range vecs {
			blob, err := cbor.Marshal(vec)
			if err != nil {
				return updated, fmt.Errorf("encode embedding: %w", err)
			}
			upd, uargs := entsql.Dialect(dialect.SQLite).
				Update("passages").
				Set("embedding", blob).
				Set("model", x.embedder.ModelID()).
				Where(entsql.EQ("id", ids[start+i])).
				Query()
			if _, err := x.db.ExecContext(ctx, upd, uargs...); err != nil {
				return updated, fmt.Errorf("update passage %s: %w", ids[start+i], err)
			}
			updated++
		}
	}
	return updated, nil
}

func humanizeTopic(topic string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(topic)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
