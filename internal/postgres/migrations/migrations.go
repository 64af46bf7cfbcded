// Package migrations embeds the schema files applied by the migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_strategic_plans.sql",
	"002_create_content_pieces.sql",
	"003_create_task_records.sql",
	"004_create_publish_schedules.sql",
}
