package domain

import "time"

// ContentStatus tracks how far a content piece has progressed through the
// pipeline. While in flight it holds the name of the stage currently being
// worked on; Published and NeedsReview are terminal.
type ContentStatus string

const (
	ContentKeyword  ContentStatus = "keyword"
	ContentResearch ContentStatus = "research"
	ContentDraft    ContentStatus = "draft"
	ContentEdit     ContentStatus = "edit"
	ContentImage    ContentStatus = "image"
	ContentPublish  ContentStatus = "publish"

	// Published is set by the scheduler when the terminal stage succeeds.
	ContentPublished ContentStatus = "published"
	// NeedsReview is set only by a human decision (abandon), never by the
	// scheduler itself — escalation is visible on the task record.
	ContentNeedsReview ContentStatus = "needs_review"
)

// IsTerminal returns true if the scheduler takes no further action on the piece.
func (s ContentStatus) IsTerminal() bool {
	return s == ContentPublished || s == ContentNeedsReview
}

// StrategicPlan holds the editorial brief a content piece is written against.
// Plan fields are folded into every work-unit input snapshot.
type StrategicPlan struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Audience  string    `json:"audience"`
	Tone      string    `json:"tone"`
	Niche     string    `json:"niche"`
	Goal      string    `json:"goal"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentPiece is an article progressing through the pipeline.
type ContentPiece struct {
	ID          string        `json:"id"`
	PlanID      string        `json:"plan_id"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	DraftText   string        `json:"draft_text"`
	FinalText   string        `json:"final_text"`
	Status      ContentStatus `json:"status"`
	WPPostID    *int64        `json:"wp_post_id,omitempty"`
	WPURL       string        `json:"wp_url,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
}
