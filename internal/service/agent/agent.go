// Package agent runs travel queries through a pausable eino graph.
//
// Every run stops before its email step. The paused run is stored under its
// thread id and may later be resumed with an explicit email request.
package agent

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/travel-agent/backend/internal/model/travel"
)

var (
	// ErrThreadIDRequired is returned when a call carries no thread id.
	ErrThreadIDRequired = errors.New("thread id is required")
	// ErrNoMessages is returned when Invoke receives an empty conversation.
	ErrNoMessages = errors.New("at least one message is required")
	// ErrNotPaused is returned by Resume when the thread has no run waiting at
	// its email step.
	ErrNotPaused = errors.New("agent run is not paused at the email step")
	// ErrEmptyReply is returned when the model produced no final message.
	ErrEmptyReply = errors.New("agent produced no reply")
)

// Status describes how an agent run stopped.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusPendingEmail Status = "pending_email"
)

// Input is the payload of a fresh run.
type Input struct {
	Messages []*schema.Message
}

// Result is the conversation produced by a run. The reply is the last message.
type Result struct {
	Messages []*schema.Message
	Status   Status
}

// Reply returns the final message, or nil for an empty result.
func (r *Result) Reply() *schema.Message {
	if r == nil || len(r.Messages) == 0 {
		return nil
	}
	return r.Messages[len(r.Messages)-1]
}

// Agent is the long-lived handle shared by every browser session.
type Agent interface {
	// Invoke starts a run for threadID.
	Invoke(ctx context.Context, input Input, threadID string) (*Result, error)
	// Resume continues a run that reported StatusPendingEmail. Any other
	// thread yields ErrNotPaused without running anything.
	Resume(ctx context.Context, threadID string, req travel.EmailRequest) (*Result, error)
	// Discard forgets the paused run of threadID so it can no longer be
	// resumed. Discarding an unknown thread is not an error.
	Discard(ctx context.Context, threadID string) error
}
