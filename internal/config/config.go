// Package config resolves the tutor's runtime settings from the
// environment. It is read once at start-up.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Defaults.
const (
	DefaultMinScoreToPass     = 80.0
	DefaultQuestionsPerLesson = 3
	DefaultServiceRetries     = 2
	DefaultTelegramWorkers    = 8
	DefaultHTTPAddr           = ":8080"
)

// Config holds process-wide settings. Paths left empty are resolved by
// the command layer against the data directory.
type Config struct {
	MinScoreToPass     float64
	QuestionsPerLesson int
	ServiceRetries     int

	TelegramToken   string
	TelegramWorkers int

	DBPath         string
	VectorDir      string
	CurriculumPath string
	KnowledgeFile  string
	RedisURL       string
	HTTPAddr       string

	// QuestionSource is "llm" (default) or "passages".
	QuestionSource string
	// Evaluator is "llm" (default) or "keyword".
	Evaluator string

	LogMode  string
	LogLevel string
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMinScore        ConfigErrorCode = "invalid_min_score"
	ConfigErrorInvalidQuestionCount   ConfigErrorCode = "invalid_questions_per_lesson"
	ConfigErrorInvalidServiceRetries  ConfigErrorCode = "invalid_service_retries"
	ConfigErrorInvalidTelegramWorkers ConfigErrorCode = "invalid_telegram_workers"
	ConfigErrorInvalidQuestionSource  ConfigErrorCode = "invalid_question_source"
	ConfigErrorInvalidEvaluator       ConfigErrorCode = "invalid_evaluator"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid tutor config"
	}
	switch e.Code {
	case ConfigErrorInvalidMinScore:
		return fmt.Sprintf("invalid MIN_SCORE_TO_PASS=%q; expected an integer between 0 and 100", e.Value)
	case ConfigErrorInvalidQuestionCount:
		return fmt.Sprintf("invalid QUESTIONS_PER_LESSON=%q; expected a positive integer", e.Value)
	case ConfigErrorInvalidServiceRetries:
		return fmt.Sprintf("invalid TUTOR_SERVICE_RETRIES=%q; expected a non-negative integer", e.Value)
	case ConfigErrorInvalidTelegramWorkers:
		return fmt.Sprintf("invalid TUTOR_TELEGRAM_WORKERS=%q; expected a positive integer", e.Value)
	case ConfigErrorInvalidQuestionSource:
		return fmt.Sprintf("invalid TUTOR_QUESTION_SOURCE=%q; expected llm or passages", e.Value)
	case ConfigErrorInvalidEvaluator:
		return fmt.Sprintf("invalid TUTOR_EVALUATOR=%q; expected llm or keyword", e.Value)
	default:
		return "invalid tutor config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Default returns a Config with every default applied and no paths set.
func Default() Config {
	return Config{
		MinScoreToPass:     DefaultMinScoreToPass,
		QuestionsPerLesson: DefaultQuestionsPerLesson,
		ServiceRetries:     DefaultServiceRetries,
		TelegramWorkers:    DefaultTelegramWorkers,
		HTTPAddr:           DefaultHTTPAddr,
		QuestionSource:     "llm",
		Evaluator:          "llm",
		LogMode:            "dev",
	}
}

// FromEnv resolves a Config from the environment and validates it.
func FromEnv() (Config, error) {
	cfg := Default()

	if raw := getEnv("MIN_SCORE_TO_PASS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidMinScore, Value: raw, Cause: err}
		}
		cfg.MinScoreToPass = float64(v)
	}
	if raw := getEnv("QUESTIONS_PER_LESSON"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidQuestionCount, Value: raw, Cause: err}
		}
		cfg.QuestionsPerLesson = v
	}
	if raw := getEnv("TUTOR_SERVICE_RETRIES"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidServiceRetries, Value: raw, Cause: err}
		}
		cfg.ServiceRetries = v
	}
	if raw := getEnv("TUTOR_TELEGRAM_WORKERS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidTelegramWorkers, Value: raw, Cause: err}
		}
		cfg.TelegramWorkers = v
	}

	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN")
	cfg.DBPath = getEnv("TUTOR_DB")
	cfg.VectorDir = firstEnv("TUTOR_VECTOR_DIR", "CHROMA_PERSIST_DIRECTORY")
	cfg.CurriculumPath = getEnv("TUTOR_CURRICULUM")
	cfg.KnowledgeFile = getEnv("TUTOR_KNOWLEDGE_FILE")
	cfg.RedisURL = getEnv("TUTOR_REDIS_URL")
	if addr := getEnv("TUTOR_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if src := strings.ToLower(getEnv("TUTOR_QUESTION_SOURCE")); src != "" {
		cfg.QuestionSource = src
	}
	if ev := strings.ToLower(getEnv("TUTOR_EVALUATOR")); ev != "" {
		cfg.Evaluator = ev
	}
	if mode := getEnv("TUTOR_LOG_MODE"); mode != "" {
		cfg.LogMode = mode
	}
	cfg.LogLevel = getEnv("LOG_LEVEL")

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks numeric ranges.
func Validate(cfg Config) error {
	if math.IsNaN(cfg.MinScoreToPass) || cfg.MinScoreToPass < 0 || cfg.MinScoreToPass > 100 {
		return &ConfigError{Code: ConfigErrorInvalidMinScore, Value: strconv.FormatFloat(cfg.MinScoreToPass, 'g', -1, 64)}
	}
	if cfg.QuestionsPerLesson <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidQuestionCount, Value: strconv.Itoa(cfg.QuestionsPerLesson)}
	}
	if cfg.ServiceRetries < 0 {
		return &ConfigError{Code: ConfigErrorInvalidServiceRetries, Value: strconv.Itoa(cfg.ServiceRetries)}
	}
	if cfg.TelegramWorkers <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidTelegramWorkers, Value: strconv.Itoa(cfg.TelegramWorkers)}
	}
	switch cfg.QuestionSource {
	case "", "llm", "passages":
	default:
		return &ConfigError{Code: ConfigErrorInvalidQuestionSource, Value: cfg.QuestionSource}
	}
	switch cfg.Evaluator {
	case "", "llm", "keyword":
	default:
		return &ConfigError{Code: ConfigErrorInvalidEvaluator, Value: cfg.Evaluator}
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getEnv(k); v != "" {
			return v
		}
	}
	return ""
}
