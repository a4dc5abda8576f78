package store

import (
	"context"
	"database/sql"

	"entgo.io/ent/dialect"
	entann "entgo.io/ent/dialect/entsql"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Tables mirror the definitions in ent/schema, in the shape the ent
// code generator emits for its migrate package.
var (
	learnersTableColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "display_name", Type: field.TypeString, Default: ""},
		{Name: "current_lesson", Type: field.TypeInt, Default: 1},
		{Name: "archived", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeInt64},
		{Name: "last_active_at", Type: field.TypeInt64},
	}
	learnersTable = &schema.Table{
		Name:       "learners",
		Columns:    learnersTableColumns,
		PrimaryKey: []*schema.Column{learnersTableColumns[0]},
	}

	progressTableColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "lesson_id", Type: field.TypeString},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "best_average", Type: field.TypeFloat64, Default: 0},
		{Name: "last_average", Type: field.TypeFloat64, Default: 0},
		{Name: "passed", Type: field.TypeBool, Default: false},
		{Name: "passed_at", Type: field.TypeInt64, Nullable: true},
		{Name: "consecutive_failures", Type: field.TypeInt, Default: 0},
		{Name: "remediation_required", Type: field.TypeBool, Default: false},
		{Name: "updated_at", Type: field.TypeInt64},
		{Name: "learner_id", Type: field.TypeString},
	}
	progressTable = &schema.Table{
		Name:       "progress",
		Columns:    progressTableColumns,
		PrimaryKey: []*schema.Column{progressTableColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "progress_learners_progress",
			Columns:    []*schema.Column{progressTableColumns[10]},
			RefColumns: []*schema.Column{learnersTableColumns[0]},
			OnDelete:   schema.NoAction,
		}},
		Indexes: []*schema.Index{{
			Name:    "progress_by_lesson",
			Unique:  true,
			Columns: []*schema.Column{progressTableColumns[10], progressTableColumns[1]},
		}},
	}

	sessionsTableColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "lesson_id", Type: field.TypeString},
		{Name: "state", Type: field.TypeString},
		{Name: "outcome", Type: field.TypeString, Default: ""},
		{Name: "active", Type: field.TypeBool},
		{Name: "attempts", Type: field.TypeString, Size: 2147483647},
		{Name: "started_at", Type: field.TypeInt64},
		{Name: "updated_at", Type: field.TypeInt64},
		{Name: "ended_at", Type: field.TypeInt64, Nullable: true},
		{Name: "learner_id", Type: field.TypeString},
	}
	sessionsTable = &schema.Table{
		Name:       "sessions",
		Columns:    sessionsTableColumns,
		PrimaryKey: []*schema.Column{sessionsTableColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "sessions_learners_sessions",
			Columns:    []*schema.Column{sessionsTableColumns[9]},
			RefColumns: []*schema.Column{learnersTableColumns[0]},
			OnDelete:   schema.NoAction,
		}},
		Indexes: []*schema.Index{
			{
				Name:       "sessions_one_active",
				Unique:     true,
				Columns:    []*schema.Column{sessionsTableColumns[9], sessionsTableColumns[1]},
				Annotation: &entann.IndexAnnotation{Where: "active = 1"},
			},
			{
				Name:    "sessions_by_learner",
				Columns: []*schema.Column{sessionsTableColumns[9], sessionsTableColumns[4], sessionsTableColumns[7]},
			},
		},
	}

	eventsTableColumns = []*schema.Column{
		{Name: "sequence", Type: field.TypeInt64, Increment: true},
		{Name: "kind", Type: field.TypeString},
		{Name: "learner_id", Type: field.TypeString, Default: ""},
		{Name: "lesson_id", Type: field.TypeString, Default: ""},
		{Name: "session_id", Type: field.TypeString, Default: ""},
		{Name: "payload", Type: field.TypeString, Size: 2147483647, Default: "{}"},
		{Name: "created_at", Type: field.TypeInt64},
	}
	eventsTable = &schema.Table{
		Name:       "events",
		Columns:    eventsTableColumns,
		PrimaryKey: []*schema.Column{eventsTableColumns[0]},
		Indexes: []*schema.Index{{
			Name:    "events_by_learner",
			Columns: []*schema.Column{eventsTableColumns[2]},
		}},
	}

	llmRequestsTableColumns = []*schema.Column{
		{Name: "sequence", Type: field.TypeInt64, Increment: true},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString, Default: ""},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	llmRequestsTable = &schema.Table{
		Name:       "llm_requests",
		Columns:    llmRequestsTableColumns,
		PrimaryKey: []*schema.Column{llmRequestsTableColumns[0]},
		Indexes: []*schema.Index{{
			Name:    "llmrequest_purpose",
			Columns: []*schema.Column{llmRequestsTableColumns[3]},
		}},
	}

	tables = []*schema.Table{
		learnersTable,
		progressTable,
		sessionsTable,
		eventsTable,
		llmRequestsTable,
	}
)

func init() {
	progressTable.ForeignKeys[0].RefTable = learnersTable
	sessionsTable.ForeignKeys[0].RefTable = learnersTable
}

// migrate creates missing tables, columns and indexes through ent's
// migration engine. It never drops anything.
func migrate(ctx context.Context, db *sql.DB) error {
	m, err := schema.NewMigrate(entsql.OpenDB(dialect.SQLite, db))
	if err != nil {
		return err
	}
	return m.Create(ctx, tables...)
}
