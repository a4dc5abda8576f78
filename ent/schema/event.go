package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event is an append-only audit record of a learner-facing transition.
type Event struct {
	ent.Schema
}

func (Event) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "events"}}
}

func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			StorageKey("sequence").
			Immutable().
			Comment("Monotonically increasing global sequence number"),
		field.String("kind").
			NotEmpty().
			Immutable(),
		field.String("learner_id").
			Default("").
			Immutable(),
		field.String("lesson_id").
			Default("").
			Immutable(),
		field.String("session_id").
			Default("").
			Immutable(),
		field.Text("payload").
			Default("{}").
			Immutable(),
		field.Int64("created_at").
			Immutable(),
	}
}

func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("learner_id").
			StorageKey("events_by_learner"),
	}
}
