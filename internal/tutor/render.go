package tutor

import (
	"fmt"
	"strings"
)

const helpText = `Commands:
/lessons - list lessons and where you stand
/lesson [id] - start a lesson (your next one if no id)
/resume - repeat the current question
/retry - retake the lesson you last finished
/stop - abandon the lesson in progress
/progress - your scores and streak
Anything else you send is taken as your answer.`

func welcomeText(curriculum string) string {
	return fmt.Sprintf("Welcome! This course covers %s.\nSend /lesson to begin or /help for all commands.", curriculum)
}

func feedbackText(question int, score float64, feedback string) string {
	s := fmt.Sprintf("Answer %d: %.0f/100.", question, score)
	if feedback = strings.TrimSpace(feedback); feedback != "" {
		s += " " + feedback
	}
	return s
}

func resultText(title string, res *Result, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s finished with an average of %.1f (pass mark %.0f).\n", title, res.Average, threshold)
	switch res.Outcome {
	case OutcomePassed:
		b.WriteString("Passed!")
		if res.NextLesson != nil {
			fmt.Fprintf(&b, " Next up: %s. Send %s to continue.", res.NextLesson.Title, CmdLesson)
		} else {
			b.WriteString(" That was the last lesson of the course.")
		}
	case OutcomeFailedRetry:
		fmt.Fprintf(&b, "Not quite there. Send %s to try again.", CmdRetry)
	case OutcomeRemediation:
		fmt.Fprintf(&b, "This lesson needs more work; it has been flagged for review. Send %s when you are ready.", CmdRetry)
	}
	for _, a := range res.Achievements {
		fmt.Fprintf(&b, "\nAchievement unlocked: %s. %s", a.Title(), a.Reason)
	}
	return b.String()
}

var statusMarks = map[LessonStatus]string{
	StatusLocked:      "[locked]",
	StatusAvailable:   "[open]",
	StatusInProgress:  "[in progress]",
	StatusPassed:      "[passed]",
	StatusRemediation: "[review]",
}

func lessonsText(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", rep.Curriculum)
	for _, l := range rep.Lessons {
		fmt.Fprintf(&b, "%d. %s %s (%s)", l.Position, statusMarks[l.Status], l.Title, l.LessonID)
		if l.Attempts > 0 {
			fmt.Fprintf(&b, " best %.0f", l.BestAverage)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func progressText(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lessons passed: %d of %d\n", rep.Passed, rep.Total)
	if rep.Band != "" {
		fmt.Fprintf(&b, "Average best score: %.1f (%s)\n", rep.Average, rep.Band)
	}
	fmt.Fprintf(&b, "Days with a finished lesson: %d\n", rep.Streak)
	fmt.Fprintf(&b, "Question level: %s", rep.Difficulty)
	if len(rep.Achievements) > 0 {
		titles := make([]string, len(rep.Achievements))
		for i, a := range rep.Achievements {
			titles[i] = a.Title()
		}
		fmt.Fprintf(&b, "\nAchievements: %s", strings.Join(titles, ", "))
	}
	switch {
	case rep.ActiveLessonID != "":
		fmt.Fprintf(&b, "\nIn progress: %s (send %s)", rep.ActiveLessonID, CmdResume)
	case rep.CurrentLessonID != "":
		fmt.Fprintf(&b, "\nNext lesson: %s", rep.CurrentLessonID)
	default:
		b.WriteString("\nCourse complete.")
	}
	return b.String()
}
