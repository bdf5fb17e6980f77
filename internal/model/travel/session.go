package travel

import "time"

// Status tracks where a session sits in the query/email cycle.
type Status string

const (
	// StatusIdle means no answer is held; a query is required before email.
	StatusIdle Status = "idle"
	// StatusAnswered means an answer is held but the agent run has finished.
	StatusAnswered Status = "answered"
	// StatusEmailPending means the agent run is paused before its email step.
	StatusEmailPending Status = "email_pending"
)

// Session captures the state of one browser session.
type Session struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"threadId,omitempty"`
	TravelInfo string    `json:"travelInfo,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasTravelInfo reports whether the email action may be offered.
func (s Session) HasTravelInfo() bool {
	return s.TravelInfo != ""
}

// Reset drops the answer and thread, returning the session to idle.
func (s *Session) Reset() {
	s.ThreadID = ""
	s.TravelInfo = ""
	s.Status = StatusIdle
}
