package questiongen

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a tutor writing questions that check a learner's understanding of one lesson.

Rules:
- Ask exactly one open-ended question that can be answered in two to four sentences.
- Ground the question and the reference answer in the context passage. Do not rely on facts absent from it.
- Pitch the question at the requested difficulty: beginner asks for definitions, intermediate for explanation, advanced for application to a scenario.
- List the key points a complete answer covers. Each key point is one short phrase.
- Describe acceptable paraphrases in the criteria so a grader can award partial credit.
- Do not repeat or trivially rephrase any question from the "already asked" list.`

// buildUserMessage renders the generation context.
func buildUserMessage(input Input, cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Lesson: %s\n", input.Lesson.Title)
	fmt.Fprintf(&b, "Topic: %s\n", input.Lesson.Topic)
	if input.Lesson.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", input.Lesson.Summary)
	}
	if len(input.Lesson.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(input.Lesson.Keywords, ", "))
	}
	fmt.Fprintf(&b, "Difficulty: %s\n", input.Difficulty)

	b.WriteString("\nContext passage:\n")
	if strings.TrimSpace(input.Passage.Text) != "" {
		b.WriteString(input.Passage.Text)
	} else {
		b.WriteString("None. Use the lesson summary and keywords.")
	}

	b.WriteString("\n\nAlready asked in this session:\n")
	b.WriteString(buildDedup(input.PriorQuestions, cfg.MaxPriorQuestions))

	return b.String()
}

// buildDedup formats prior questions for the prompt, newest max kept.
func buildDedup(prior []string, max int) string {
	if len(prior) == 0 {
		return "None"
	}
	if max > 0 && len(prior) > max {
		prior = prior[len(prior)-max:]
	}

	var b strings.Builder
	for i, q := range prior {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
