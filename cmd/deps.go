package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/config"
	"github.com/abhisek/tutorbot/internal/curriculum"
	"github.com/abhisek/tutorbot/internal/evaluator"
	"github.com/abhisek/tutorbot/internal/keylock"
	"github.com/abhisek/tutorbot/internal/knowledge"
	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/logging"
	"github.com/abhisek/tutorbot/internal/questiongen"
	"github.com/abhisek/tutorbot/internal/sqlite"
	"github.com/abhisek/tutorbot/internal/store"
	"github.com/abhisek/tutorbot/internal/telemetry"
	"github.com/abhisek/tutorbot/internal/tutor"
)

// deps is everything a running tutor needs, opened in dependency order
// and closed in reverse.
type deps struct {
	cfg   config.Config
	log   *zap.Logger
	store *store.Store
	index *knowledge.Index
	tutor *tutor.Orchestrator

	closers []func() error
}

func (d *deps) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if d.log != nil {
		_ = d.log.Sync()
	}
	return errors.Join(errs...)
}

// loadBase reads config and opens the logger and store. Commands that
// only inspect the database stop here.
func loadBase(cmd *cobra.Command) (*deps, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	d := &deps{cfg: cfg, log: log}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.store = st
	d.onClose(st.Close)
	return d, nil
}

// openIndex opens the knowledge index with the configured embedder.
func (d *deps) openIndex(ctx context.Context, llmCfg llm.Config) error {
	dir := d.cfg.VectorDir
	if dir == "" {
		var err error
		if dir, err = sqlite.DefaultVectorDir(); err != nil {
			return fmt.Errorf("resolve vector dir: %w", err)
		}
	}
	embedder, err := llm.NewEmbedder(ctx, llmCfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	idx, err := knowledge.OpenIndex(dir, embedder, d.log.Named("knowledge"))
	if err != nil {
		return err
	}
	d.index = idx
	d.onClose(idx.Close)
	return nil
}

// loadTutor builds the full orchestrator on top of loadBase.
func loadTutor(cmd *cobra.Command) (*deps, error) {
	ctx := cmd.Context()
	d, err := loadBase(cmd)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(version), d.log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	d.onClose(func() error { return shutdown(context.Background()) })

	cur, err := loadCurriculum(cmd, d.cfg)
	if err != nil {
		return nil, err
	}

	llmCfg := llm.ConfigFromEnv()
	if err := d.openIndex(ctx, llmCfg); err != nil {
		return nil, err
	}
	if d.cfg.KnowledgeFile != "" {
		if err := seedKnowledge(ctx, d); err != nil {
			return nil, err
		}
	}

	var provider llm.Provider
	if d.cfg.QuestionSource != "passages" || d.cfg.Evaluator != "keyword" {
		provider, err = llm.NewProvider(ctx, llmCfg, d.store, d.log.Named("llm"))
		if err != nil {
			return nil, fmt.Errorf("LLM provider: %w (set TUTOR_QUESTION_SOURCE=passages and TUTOR_EVALUATOR=keyword to run offline)", err)
		}
	}

	var gen questiongen.Generator = questiongen.NewPassageGenerator()
	if d.cfg.QuestionSource != "passages" {
		gen = questiongen.New(provider, questiongen.DefaultConfig())
	}
	var eval evaluator.Evaluator = evaluator.KeywordEvaluator{}
	if d.cfg.Evaluator != "keyword" {
		eval = evaluator.New(provider, evaluator.DefaultConfig(), d.log.Named("evaluator"))
	}

	opts := tutor.DefaultOptions()
	opts.ServiceRetries = d.cfg.ServiceRetries
	opts.Logger = d.log.Named("tutor")
	if d.cfg.RedisURL != "" {
		locker, err := keylock.DialRedis(ctx, d.cfg.RedisURL, keylock.WithRedisLogger(d.log.Named("keylock")))
		if err != nil {
			return nil, fmt.Errorf("connect lock redis: %w", err)
		}
		d.onClose(locker.Close)
		opts.Locker = locker
	}

	d.tutor = tutor.New(cur, d.store, d.index, gen, eval, opts)
	d.log.Info("tutor ready",
		zap.String("curriculum", cur.Title),
		zap.Int("lessons", cur.Len()),
		zap.String("questions", d.cfg.QuestionSource),
		zap.String("evaluator", d.cfg.Evaluator),
	)
	ok = true
	return d, nil
}

// loadOffline builds an orchestrator with no question or answer service,
// for commands that only read or archive progress.
func loadOffline(cmd *cobra.Command) (*deps, error) {
	d, err := loadBase(cmd)
	if err != nil {
		return nil, err
	}
	cur, err := loadCurriculum(cmd, d.cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	opts := tutor.DefaultOptions()
	opts.Logger = d.log.Named("tutor")
	d.tutor = tutor.New(cur, d.store, nil, nil, nil, opts)
	return d, nil
}

func loadCurriculum(cmd *cobra.Command, cfg config.Config) (*curriculum.Curriculum, error) {
	path := cfg.CurriculumPath
	if p, _ := cmd.Flags().GetString("curriculum"); p != "" {
		path = p
	}
	return curriculum.Load(path, curriculum.Defaults{
		QuestionsPerLesson: cfg.QuestionsPerLesson,
		MinScoreToPass:     cfg.MinScoreToPass,
	})
}

// seedKnowledge ingests TUTOR_KNOWLEDGE_FILE when the index is empty.
func seedKnowledge(ctx context.Context, d *deps) error {
	n, err := d.index.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	stats, err := d.index.IngestFile(ctx, d.cfg.KnowledgeFile)
	if err != nil {
		return err
	}
	d.log.Info("knowledge base seeded",
		zap.String("file", d.cfg.KnowledgeFile),
		zap.Int("added", stats.Added),
		zap.Int("skipped", stats.Skipped),
	)
	return nil
}

// resolveDBPath returns the database path using --db (highest priority),
// then TUTOR_DB, then the default data directory.
func resolveDBPath(cmd *cobra.Command, cfg config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, nil
	}
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	return sqlite.DefaultDBPath()
}
