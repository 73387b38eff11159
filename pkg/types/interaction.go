package types

import "time"

// Feedback values recorded against a logged interaction.
const (
	FeedbackPending = "Pending"
	FeedbackYes     = "Yes"
	FeedbackNo      = "No"
)

// Manager values before a support lead accepts the escalation.
const (
	ManagerNone    = "N/A"
	ManagerPending = "Pending"
)

// Interaction is one help request routed through the bot: the question
// asked, the answer served, and the feedback/acceptance trail.
type Interaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Feedback  string    `json:"feedback"`
	Manager   string    `json:"manager"`
	CreatedAt time.Time `json:"created_at"`
}
