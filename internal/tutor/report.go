package tutor

import (
	"context"
	"fmt"

	"github.com/abhisek/tutorbot/internal/achievement"
	"github.com/abhisek/tutorbot/internal/questiongen"
)

// LessonStatus is where a lesson stands for one learner.
type LessonStatus string

const (
	StatusLocked      LessonStatus = "locked"
	StatusAvailable   LessonStatus = "available"
	StatusInProgress  LessonStatus = "in_progress"
	StatusPassed      LessonStatus = "passed"
	StatusRemediation LessonStatus = "remediation"
)

// LessonReport is one row of a progress report.
type LessonReport struct {
	LessonID    string       `json:"lesson_id"`
	Title       string       `json:"title"`
	Topic       string       `json:"topic"`
	Position    int          `json:"position"`
	Status      LessonStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	BestAverage float64      `json:"best_average"`
	Band        Band         `json:"band,omitempty"`
}

// Report summarises a learner's progress through the curriculum.
type Report struct {
	LearnerID  string         `json:"learner_id"`
	Curriculum string         `json:"curriculum"`
	Lessons    []LessonReport `json:"lessons"`
	Passed     int            `json:"passed"`
	Total      int            `json:"total"`

	// Average is the mean best average over attempted lessons.
	Average float64 `json:"average"`
	Band    Band    `json:"band,omitempty"`

	// Streak counts distinct days on which a session was completed.
	Streak     int                    `json:"streak"`
	Difficulty questiongen.Difficulty `json:"difficulty"`

	// CurrentLessonID is the next lesson to work on; empty once every
	// lesson has been passed.
	CurrentLessonID string `json:"current_lesson_id,omitempty"`
	ActiveLessonID  string `json:"active_lesson_id,omitempty"`

	Achievements []achievement.Award `json:"achievements,omitempty"`
}

// Progress builds the learner's report. Unknown learners get an empty
// report starting at the first lesson.
func (o *Orchestrator) Progress(ctx context.Context, learnerID string) (*Report, error) {
	learner, err := o.loadLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	records, err := o.store.ListProgress(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	active, err := o.store.ActiveSessions(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	history, err := o.store.SessionHistory(ctx, learnerID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	awards, err := o.store.Achievements(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}

	byLesson := make(map[string]ProgressRecord, len(records))
	for _, r := range records {
		byLesson[r.LessonID] = r
	}
	inProgress := make(map[string]bool, len(active))
	for _, s := range active {
		inProgress[s.LessonID] = true
	}

	rep := &Report{
		LearnerID:  learnerID,
		Curriculum: o.curriculum.Title,
		Total:      o.curriculum.Len(),
		Difficulty: DifficultyFor(records),
		Streak:     streak(history),

		Achievements: awards,
	}
	if len(active) > 0 {
		rep.ActiveLessonID = active[0].LessonID
	}

	var best []float64
	for _, l := range o.curriculum.Lessons() {
		rec := byLesson[l.ID]
		row := LessonReport{
			LessonID:    l.ID,
			Title:       l.Title,
			Topic:       l.Topic,
			Position:    l.Position,
			Attempts:    rec.Attempts,
			BestAverage: rec.BestAverage,
		}
		if rec.Attempts > 0 {
			row.Band = BandFor(rec.BestAverage)
			best = append(best, rec.BestAverage)
		}

		switch {
		case inProgress[l.ID]:
			row.Status = StatusInProgress
		case rec.Passed:
			row.Status = StatusPassed
			rep.Passed++
		case rec.RemediationRequired:
			row.Status = StatusRemediation
		case l.Position > learner.CurrentLesson:
			row.Status = StatusLocked
		default:
			row.Status = StatusAvailable
		}
		if rec.Passed && row.Status == StatusInProgress {
			rep.Passed++
		}
		if rep.CurrentLessonID == "" && !rec.Passed && l.Position <= learner.CurrentLesson {
			rep.CurrentLessonID = l.ID
		}
		rep.Lessons = append(rep.Lessons, row)
	}

	if avg, ok := Mean(best); ok {
		rep.Average = avg
		rep.Band = BandFor(avg)
	}
	return rep, nil
}

// streak counts distinct UTC days with a completed session.
func streak(history []Session) int {
	days := make(map[string]bool)
	for _, s := range history {
		if s.Outcome.Completed() && s.EndedAt != nil {
			days[s.EndedAt.UTC().Format("2006-01-02")] = true
		}
	}
	return len(days)
}
