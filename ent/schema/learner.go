package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// Learner is a person taking the course, keyed by channel-qualified id
// (e.g. "tg:42").
type Learner struct {
	ent.Schema
}

func (Learner) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "learners"}}
}

func (Learner) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable(),
		field.String("display_name").
			Default(""),
		field.Int("current_lesson").
			Default(1).
			Comment("1-based position in the course"),
		field.Bool("archived").
			Default(false),
		field.Int64("created_at").
			Immutable().
			Comment("UTC unix milliseconds"),
		field.Int64("last_active_at").
			Comment("UTC unix milliseconds"),
	}
}

func (Learner) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("progress", Progress.Type),
		edge.To("sessions", Session.Type),
	}
}
