package tutor

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/curriculum"
	"github.com/abhisek/tutorbot/internal/knowledge"
	"github.com/abhisek/tutorbot/internal/logging"
	"github.com/abhisek/tutorbot/internal/questiongen"
)

// nextQuestion retrieves passages for the lesson topic and generates a
// question that differs from everything already asked in sess.
// Candidates are tried in order: passages not yet used in the session,
// used ones, then the lesson outline. A retryable rejection moves on to
// the next candidate; any other rejection stops generation.
func (o *Orchestrator) nextQuestion(ctx context.Context, lesson curriculum.Lesson, sess *Session, difficulty questiongen.Difficulty) (QuestionAttempt, error) {
	var passages []knowledge.Passage
	if o.retriever != nil {
		err := o.retry(ctx, "retrieve", func(ctx context.Context) error {
			var err error
			passages, err = o.retriever.Retrieve(ctx, lesson.Topic, o.passages)
			return err
		})
		if err != nil {
			return QuestionAttempt{}, err
		}
	}

	candidates := append(rankPassages(passages, usedPassages(sess), lesson, difficulty), knowledge.Passage{})
	if len(candidates) == 1 {
		o.log.Debug("no passages for topic, using lesson outline",
			logging.Lesson(lesson.ID), zap.String("topic", lesson.Topic))
	}

	var (
		q   *questiongen.Question
		err error
	)
	for i, p := range candidates {
		last := i == len(candidates)-1
		err = o.retry(ctx, "generate", func(ctx context.Context) error {
			var err error
			q, err = o.generator.Generate(ctx, questiongen.Input{
				Lesson:         lesson,
				Passage:        p,
				PriorQuestions: sess.Questions(),
				Difficulty:     difficulty,
			})
			// A rejection is regenerated only when no other candidate
			// is left to move on to.
			var verr *questiongen.ValidationError
			if errors.As(err, &verr) && (!verr.Retryable || !last) {
				return permanent{err}
			}
			return err
		})
		var verr *questiongen.ValidationError
		if err == nil || !errors.As(err, &verr) || !verr.Retryable {
			break
		}
		o.log.Debug("question rejected",
			logging.Lesson(lesson.ID),
			zap.String("passage_id", p.ID),
			zap.String("validator", verr.Validator),
			zap.String("reason", verr.Message))
	}
	if err != nil {
		return QuestionAttempt{}, err
	}

	if q.Rubric.Question == "" {
		q.Rubric.Question = q.Text
	}
	if q.Difficulty == "" {
		q.Difficulty = difficulty
	}
	return QuestionAttempt{
		Index:      len(sess.Attempts),
		Question:   q.Text,
		Rubric:     q.Rubric,
		Difficulty: q.Difficulty,
		AskedAt:    o.now(),
	}, nil
}

func usedPassages(sess *Session) map[string]bool {
	used := make(map[string]bool, len(sess.Attempts))
	for _, a := range sess.Attempts {
		if a.Rubric.SourcePassageID != "" {
			used[a.Rubric.SourcePassageID] = true
		}
	}
	return used
}

// rankPassages orders passages by fit: unused in the session first,
// then same lesson, then matching difficulty, then retrieval score.
func rankPassages(passages []knowledge.Passage, used map[string]bool, lesson curriculum.Lesson, difficulty questiongen.Difficulty) []knowledge.Passage {
	fresh := append([]knowledge.Passage(nil), passages...)

	fit := func(p knowledge.Passage) int {
		n := 0
		if p.Lesson != "" && p.Lesson == lesson.ID {
			n += 2
		}
		if p.Difficulty == string(difficulty) {
			n++
		}
		return n
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		if ui, uj := used[fresh[i].ID], used[fresh[j].ID]; ui != uj {
			return uj
		}
		fi, fj := fit(fresh[i]), fit(fresh[j])
		if fi != fj {
			return fi > fj
		}
		return fresh[i].Score > fresh[j].Score
	})
	return fresh
}
