// Package curriculum holds the ordered lesson catalogue a learner works
// through. Lessons are immutable once loaded.
package curriculum

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCurriculum []byte

// SupportedMajor is the curriculum file format this build understands.
const SupportedMajor = "v1"

// Lesson is one step of the learning path.
type Lesson struct {
	ID       string   `yaml:"id"`
	Topic    string   `yaml:"topic"`
	Title    string   `yaml:"title"`
	Summary  string   `yaml:"summary"`
	Keywords []string `yaml:"keywords"`

	// QuestionCount and PassThreshold override the process defaults when
	// non-zero.
	QuestionCount int     `yaml:"questions"`
	PassThreshold float64 `yaml:"pass_threshold"`

	// Position is the 1-based place in the path, assigned on load.
	Position int `yaml:"-"`
}

// Defaults fill unset per-lesson settings.
type Defaults struct {
	QuestionsPerLesson int
	MinScoreToPass     float64
}

type file struct {
	Version string   `yaml:"version"`
	Title   string   `yaml:"title"`
	Lessons []Lesson `yaml:"lessons"`
}

// Curriculum is an ordered, validated lesson catalogue.
type Curriculum struct {
	Version string
	Title   string

	lessons []Lesson
	byID    map[string]int
}

// Load reads a curriculum from path, or the built-in one when path is
// empty.
func Load(path string, d Defaults) (*Curriculum, error) {
	data := defaultCurriculum
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read curriculum: %w", err)
		}
	}
	c, err := Parse(data, d)
	if err != nil {
		if path == "" {
			path = "built-in"
		}
		return nil, fmt.Errorf("curriculum %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a curriculum document.
func Parse(data []byte, d Defaults) (*Curriculum, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if !semver.IsValid(f.Version) {
		return nil, fmt.Errorf("invalid version %q: want semantic version like v1.0.0", f.Version)
	}
	if major := semver.Major(f.Version); major != SupportedMajor {
		return nil, fmt.Errorf("unsupported curriculum version %s (this build reads %s.x)", f.Version, SupportedMajor)
	}

	for i := range f.Lessons {
		l := &f.Lessons[i]
		l.Position = i + 1
		if l.QuestionCount == 0 {
			l.QuestionCount = d.QuestionsPerLesson
		}
		if l.PassThreshold == 0 {
			l.PassThreshold = d.MinScoreToPass
		}
	}
	if err := validateLessons(f.Lessons); err != nil {
		return nil, err
	}

	c := &Curriculum{
		Version: f.Version,
		Title:   f.Title,
		lessons: f.Lessons,
		byID:    make(map[string]int, len(f.Lessons)),
	}
	for i, l := range f.Lessons {
		c.byID[l.ID] = i
	}
	return c, nil
}

func validateLessons(lessons []Lesson) error {
	if len(lessons) == 0 {
		return fmt.Errorf("curriculum has no lessons")
	}

	var errs []string
	seen := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		switch {
		case strings.TrimSpace(l.ID) == "":
			errs = append(errs, fmt.Sprintf("lesson %d has no id", l.Position))
			continue
		case strings.ContainsAny(l.ID, " \t\n"):
			errs = append(errs, fmt.Sprintf("lesson id %q contains whitespace", l.ID))
		case seen[l.ID]:
			errs = append(errs, fmt.Sprintf("duplicate lesson id: %q", l.ID))
		}
		seen[l.ID] = true

		if strings.TrimSpace(l.Topic) == "" {
			errs = append(errs, fmt.Sprintf("lesson %q has no topic", l.ID))
		}
		if l.QuestionCount <= 0 {
			errs = append(errs, fmt.Sprintf("lesson %q: question count must be positive", l.ID))
		}
		if l.PassThreshold < 0 || l.PassThreshold > 100 {
			errs = append(errs, fmt.Sprintf("lesson %q: pass threshold %.1f outside 0..100", l.ID, l.PassThreshold))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("curriculum validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Lessons returns all lessons in path order.
func (c *Curriculum) Lessons() []Lesson {
	out := make([]Lesson, len(c.lessons))
	copy(out, c.lessons)
	return out
}

// Lesson looks a lesson up by id.
func (c *Curriculum) Lesson(id string) (Lesson, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Lesson{}, false
	}
	return c.lessons[i], true
}

// First returns the entry lesson.
func (c *Curriculum) First() Lesson {
	return c.lessons[0]
}

// Next returns the lesson after id, or false at the end of the path.
func (c *Curriculum) Next(id string) (Lesson, bool) {
	i, ok := c.byID[id]
	if !ok || i+1 >= len(c.lessons) {
		return Lesson{}, false
	}
	return c.lessons[i+1], true
}

// Len returns the number of lessons.
func (c *Curriculum) Len() int {
	return len(c.lessons)
}

// Topics returns the distinct topic tags in first-seen order.
func (c *Curriculum) Topics() []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range c.lessons {
		if !seen[l.Topic] {
			seen[l.Topic] = true
			out = append(out, l.Topic)
		}
	}
	return out
}
