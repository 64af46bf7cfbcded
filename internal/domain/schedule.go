package domain

import "time"

// PublishSchedule is a recurring content calendar entry: on each cron firing
// a new content piece is created under the referenced plan and enters the
// pipeline at the first stage.
type PublishSchedule struct {
	ID        string     `json:"id"`
	PlanID    string     `json:"plan_id"`
	Name      string     `json:"name"`
	CronExpr  string     `json:"cron_expr"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
