// Package achievement awards badges for milestones in a learner's
// progress through the curriculum.
package achievement

import (
	"strings"
	"time"
)

// Kind identifies the category of achievement.
type Kind string

const (
	KindFirstLesson   Kind = "first_lesson"
	KindFiveLessons   Kind = "five_lessons"
	KindExcellent     Kind = "excellent_student"
	KindTopicMastered Kind = "topic"
)

// AllKinds returns all kinds in display order.
func AllKinds() []Kind {
	return []Kind{KindFirstLesson, KindFiveLessons, KindExcellent, KindTopicMastered}
}

// DisplayName returns a human-readable label for the kind.
func (k Kind) DisplayName() string {
	switch k {
	case KindFirstLesson:
		return "First steps"
	case KindFiveLessons:
		return "Active learner"
	case KindExcellent:
		return "Excellent student"
	case KindTopicMastered:
		return "Topic master"
	default:
		return string(k)
	}
}

// Icon returns the display icon for the kind.
func (k Kind) Icon() string {
	switch k {
	case KindFirstLesson:
		return "🎯"
	case KindFiveLessons:
		return "📚"
	case KindExcellent:
		return "⭐"
	case KindTopicMastered:
		return "🏆"
	default:
		return "✦"
	}
}

// Award is a single achievement earned by a learner.
type Award struct {
	// ID is unique per learner: the kind, or topic_<tag> for mastered
	// topics.
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Topic     string    `json:"topic,omitempty"` // empty unless topic mastered
	Reason    string    `json:"reason"`
	SessionID string    `json:"session_id,omitempty"`
	AwardedAt time.Time `json:"awarded_at"`
}

// Title is the icon followed by the display name.
func (a Award) Title() string {
	return a.Kind.Icon() + " " + a.Kind.DisplayName()
}

func topicID(topic string) string {
	return string(KindTopicMastered) + "_" + topic
}

func topicName(topic string) string {
	return strings.ReplaceAll(topic, "_", " ")
}

// Payload is the award as stored in an audit event.
func (a Award) Payload() map[string]any {
	p := map[string]any{
		"achievement": a.ID,
		"kind":        string(a.Kind),
		"reason":      a.Reason,
	}
	if a.Topic != "" {
		p["topic"] = a.Topic
	}
	return p
}

// FromPayload rebuilds an award from an audit event payload. It reports
// false when the payload names no achievement.
func FromPayload(p map[string]any, sessionID string, at time.Time) (Award, bool) {
	id, _ := p["achievement"].(string)
	if id == "" {
		return Award{}, false
	}
	kind, _ := p["kind"].(string)
	reason, _ := p["reason"].(string)
	topic, _ := p["topic"].(string)
	return Award{
		ID:        id,
		Kind:      Kind(kind),
		Topic:     topic,
		Reason:    reason,
		SessionID: sessionID,
		AwardedAt: at,
	}, true
}
