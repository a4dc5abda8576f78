package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session is one run through a lesson's questions. Archived sessions
// keep their row with active unset.
type Session struct {
	ent.Schema
}

func (Session) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "sessions"}}
}

func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable(),
		field.String("learner_id").
			Immutable(),
		field.String("lesson_id").
			NotEmpty().
			Immutable(),
		field.String("state"),
		field.String("outcome").
			Default(""),
		field.Bool("active"),
		field.Text("attempts").
			Comment("JSON-encoded question attempts"),
		field.Int64("started_at").
			Immutable(),
		field.Int64("updated_at"),
		field.Int64("ended_at").
			Optional().
			Nillable(),
	}
}

func (Session) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("learner", Learner.Type).
			Ref("sessions").
			Field("learner_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (Session) Indexes() []ent.Index {
	return []ent.Index{
		// At most one active session per (learner, lesson), even across
		// processes sharing the file.
		index.Fields("learner_id", "lesson_id").
			Unique().
			StorageKey("sessions_one_active").
			Annotations(entsql.IndexWhere("active = 1")),
		index.Fields("learner_id", "active", "updated_at").
			StorageKey("sessions_by_learner"),
	}
}
