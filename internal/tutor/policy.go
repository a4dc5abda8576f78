package tutor

import (
	"github.com/abhisek/tutorbot/internal/questiongen"
)

// Mean returns the arithmetic mean; ok is false for an empty slice.
func Mean(scores []float64) (avg float64, ok bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), true
}

// Decide picks the outcome of a finished session. The threshold is
// inclusive. A failure right after another failure on the same lesson
// escalates to remediation.
func Decide(avg, threshold float64, prev ProgressRecord) Outcome {
	switch {
	case avg >= threshold:
		return OutcomePassed
	case prev.ConsecutiveFailures > 0:
		return OutcomeRemediation
	default:
		return OutcomeFailedRetry
	}
}

// ValidScore reports whether a score is within [0, 100].
func ValidScore(s float64) bool {
	return s >= 0 && s <= 100
}

// Difficulty thresholds over a learner's best lesson averages.
const (
	AdvancedFrom     = 90.0
	IntermediateFrom = 65.0
)

// DifficultyFor derives the question difficulty from past results.
// Learners with no completed lessons start at beginner.
func DifficultyFor(records []ProgressRecord) questiongen.Difficulty {
	var best []float64
	for _, r := range records {
		if r.Attempts > 0 {
			best = append(best, r.BestAverage)
		}
	}
	avg, ok := Mean(best)
	switch {
	case !ok:
		return questiongen.DifficultyBeginner
	case avg >= AdvancedFrom:
		return questiongen.DifficultyAdvanced
	case avg < IntermediateFrom:
		return questiongen.DifficultyBeginner
	default:
		return questiongen.DifficultyIntermediate
	}
}

// Band names a performance level.
type Band string

const (
	BandExcellent    Band = "excellent"
	BandGood         Band = "good"
	BandSatisfactory Band = "satisfactory"
	BandPoor         Band = "poor"
)

// BandFor maps an average score to a performance band.
func BandFor(score float64) Band {
	switch {
	case score >= 90:
		return BandExcellent
	case score >= 80:
		return BandGood
	case score >= 60:
		return BandSatisfactory
	default:
		return BandPoor
	}
}

// applyOutcome folds a finished session into the lesson's record.
func applyOutcome(prev ProgressRecord, avg float64, outcome Outcome, now timeFunc) ProgressRecord {
	rec := prev
	t := now()
	rec.Attempts++
	rec.LastAverage = avg
	if rec.Attempts == 1 || avg > rec.BestAverage {
		rec.BestAverage = avg
	}
	switch outcome {
	case OutcomePassed:
		rec.Passed = true
		if rec.PassedAt == nil {
			rec.PassedAt = &t
		}
		rec.ConsecutiveFailures = 0
		rec.RemediationRequired = false
	case OutcomeRemediation:
		rec.ConsecutiveFailures++
		rec.RemediationRequired = true
	default:
		rec.ConsecutiveFailures++
	}
	rec.UpdatedAt = t
	return rec
}
