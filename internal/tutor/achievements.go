package tutor

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/tutorbot/internal/achievement"
)

// unlockAchievements returns the achievements the learner earns once
// latest is stored and does not hold yet.
func (o *Orchestrator) unlockAchievements(ctx context.Context, sess *Session, latest ProgressRecord, now time.Time) ([]achievement.Award, error) {
	records, err := o.store.ListProgress(ctx, sess.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	held, err := o.store.Achievements(ctx, sess.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	earned := achievement.Check(o.lessonResults(records, latest))
	return achievement.Unlocked(earned, held, sess.ID, now), nil
}

// lessonResults lines progress up with the curriculum, one row per
// lesson. Records in override replace stored ones for the same lesson.
func (o *Orchestrator) lessonResults(records []ProgressRecord, override ...ProgressRecord) []achievement.LessonResult {
	byLesson := make(map[string]ProgressRecord, len(records)+len(override))
	for _, r := range records {
		byLesson[r.LessonID] = r
	}
	for _, r := range override {
		byLesson[r.LessonID] = r
	}
	out := make([]achievement.LessonResult, 0, o.curriculum.Len())
	for _, l := range o.curriculum.Lessons() {
		rec := byLesson[l.ID]
		out = append(out, achievement.LessonResult{
			LessonID:    l.ID,
			Topic:       l.Topic,
			Passed:      rec.Passed,
			Attempts:    rec.Attempts,
			BestAverage: rec.BestAverage,
		})
	}
	return out
}
