package achievement

import (
	"fmt"
	"time"
)

// ExcellentFrom is the average best score that earns KindExcellent.
const ExcellentFrom = 90.0

// LessonResult is where one curriculum lesson stands for a learner.
// Unattempted lessons have zero Attempts.
type LessonResult struct {
	LessonID    string
	Topic       string
	Passed      bool
	Attempts    int
	BestAverage float64
}

// Check returns every achievement the results qualify for, in display
// order. results must hold one row per curriculum lesson so mastered
// topics can be told apart from partly attempted ones.
func Check(results []LessonResult) []Award {
	var (
		passed int
		sum    float64
		tried  int
		topics []string
		open   = make(map[string]bool)
		seen   = make(map[string]bool)
	)
	for _, r := range results {
		if !seen[r.Topic] {
			seen[r.Topic] = true
			topics = append(topics, r.Topic)
		}
		if r.Passed {
			passed++
		} else {
			open[r.Topic] = true
		}
		if r.Attempts > 0 {
			sum += r.BestAverage
			tried++
		}
	}

	var out []Award
	if passed >= 1 {
		out = append(out, Award{ID: string(KindFirstLesson), Kind: KindFirstLesson, Reason: "Passed a first lesson"})
	}
	if passed >= 5 {
		out = append(out, Award{ID: string(KindFiveLessons), Kind: KindFiveLessons, Reason: fmt.Sprintf("Passed %d lessons", passed)})
	}
	if tried > 0 && sum/float64(tried) >= ExcellentFrom {
		out = append(out, Award{ID: string(KindExcellent), Kind: KindExcellent, Reason: fmt.Sprintf("Average best score %.1f", sum/float64(tried))})
	}
	for _, t := range topics {
		if !open[t] {
			out = append(out, Award{ID: topicID(t), Kind: KindTopicMastered, Topic: t, Reason: "Mastered " + topicName(t)})
		}
	}
	return out
}

// Unlocked returns the achievements in earned that are not in held,
// stamped with the session and time that unlocked them.
func Unlocked(earned, held []Award, sessionID string, at time.Time) []Award {
	have := make(map[string]bool, len(held))
	for _, a := range held {
		have[a.ID] = true
	}
	var out []Award
	for _, a := range earned {
		if have[a.ID] {
			continue
		}
		a.SessionID = sessionID
		a.AwardedAt = at
		out = append(out, a)
	}
	return out
}
