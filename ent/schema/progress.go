package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Progress is a learner's standing on one lesson.
type Progress struct {
	ent.Schema
}

func (Progress) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "progress"}}
}

func (Progress) Fields() []ent.Field {
	return []ent.Field{
		field.String("learner_id").
			Immutable(),
		field.String("lesson_id").
			NotEmpty().
			Immutable(),
		field.Int("attempts").
			Default(0),
		field.Float("best_average").
			Default(0),
		field.Float("last_average").
			Default(0),
		field.Bool("passed").
			Default(false),
		field.Int64("passed_at").
			Optional().
			Nillable(),
		field.Int("consecutive_failures").
			Default(0),
		field.Bool("remediation_required").
			Default(false),
		field.Int64("updated_at"),
	}
}

func (Progress) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("learner", Learner.Type).
			Ref("progress").
			Field("learner_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (Progress) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("learner_id", "lesson_id").
			Unique().
			StorageKey("progress_by_lesson"),
	}
}
