package travel

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-agent/backend/internal/logger"
	travelModel "github.com/zhouzirui/travel-agent/backend/internal/model/travel"
	"github.com/zhouzirui/travel-agent/backend/internal/service/agent"
	"github.com/zhouzirui/travel-agent/backend/internal/service/session"
)

const (
	OpQuery = "query"
	OpEmail = "email"
)

// Config tunes the dispatchers.
type Config struct {
	// DefaultSender is used when an email request names no sender.
	DefaultSender string
	// DefaultReceiver pre-fills the receiver field of the email form.
	DefaultReceiver string
	// DefaultSubject pre-fills the email form.
	DefaultSubject string
	// Timeout bounds each agent call. Zero means no limit.
	Timeout time.Duration
}

// View is what the page needs to render one session.
type View struct {
	SessionID       string             `json:"sessionId"`
	ThreadID        string             `json:"threadId,omitempty"`
	TravelInfo      string             `json:"travelInfo,omitempty"`
	Status          travelModel.Status `json:"status"`
	EmailAvailable  bool               `json:"emailAvailable"`
	DefaultSender   string             `json:"defaultSender,omitempty"`
	DefaultReceiver string             `json:"defaultReceiver,omitempty"`
	DefaultSubject  string             `json:"defaultSubject"`
}

// Service dispatches travel queries and email sends for browser sessions.
type Service struct {
	agent       agent.Agent
	sessions    session.Store
	locks       *session.Locker
	cfg         Config
	newThreadID func() string
	log         zerolog.Logger
}

// NewService wires the dispatchers to the shared agent handle and session store.
func NewService(ag agent.Agent, sessions session.Store, cfg Config) *Service {
	if cfg.DefaultSubject == "" {
		cfg.DefaultSubject = "Travel Information"
	}
	return &Service{
		agent:       ag,
		sessions:    sessions,
		locks:       session.NewLocker(),
		cfg:         cfg,
		newThreadID: uuid.NewString,
		log:         logger.Component("travel"),
	}
}

// State returns the current view of a session, creating the session on first access.
func (s *Service) State(ctx context.Context, sessionID string) (View, error) {
	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.view(sess), nil
}

// SubmitQuery runs a travel query under a fresh thread id. Blank input is
// rejected with ErrEmptyQuery before the agent is called. On any failure the
// session keeps its previous thread and answer.
func (s *Service) SubmitQuery(ctx context.Context, sessionID, query string) (View, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return View{}, ErrEmptyQuery
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	threadID := s.newThreadID()
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.agent.Invoke(callCtx, agent.Input{
		Messages: []*schema.Message{schema.UserMessage(query)},
	}, threadID)
	if err != nil {
		s.log.Error().Err(err).Str("session", sessionID).Str("threadId", threadID).Msg("query failed")
		return s.view(sess), &DispatchError{Op: OpQuery, Err: err}
	}

	reply := result.Reply()
	if reply == nil {
		return s.view(sess), &DispatchError{Op: OpQuery, Err: agent.ErrEmptyReply}
	}

	previous := sess.ThreadID
	sess.ThreadID = threadID
	sess.TravelInfo = reply.Content
	sess.Status = travelModel.StatusAnswered
	if result.Status == agent.StatusPendingEmail {
		sess.Status = travelModel.StatusEmailPending
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return View{}, fmt.Errorf("save session: %w", err)
	}

	// The replaced run must not stay resumable.
	if previous != "" && previous != threadID {
		if err := s.agent.Discard(ctx, previous); err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Str("threadId", previous).Msg("failed to discard replaced run")
		}
	}

	s.log.Info().
		Str("session", sessionID).
		Str("threadId", threadID).
		Str("status", string(sess.Status)).
		Int("answerLength", len(sess.TravelInfo)).
		Msg("query answered")
	return s.view(sess), nil
}

// SendEmail resumes the paused run of the session with explicit email
// parameters. On success the answer and thread are cleared so that a new
// query is required before another send; on failure the session is untouched.
func (s *Service) SendEmail(ctx context.Context, sessionID string, req travelModel.EmailRequest) (View, error) {
	req = req.Normalize()
	if req.From == "" {
		req.From = s.cfg.DefaultSender
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	if !sess.HasTravelInfo() {
		return s.view(sess), ErrNoTravelInfo
	}
	if !req.Complete() {
		return s.view(sess), ErrMissingEmailFields
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		return s.view(sess), fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if sess.Status != travelModel.StatusEmailPending {
		return s.view(sess), &DispatchError{Op: OpEmail, Err: agent.ErrNotPaused}
	}

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.agent.Resume(callCtx, sess.ThreadID, req); err != nil {
		s.log.Error().Err(err).Str("session", sessionID).Str("threadId", sess.ThreadID).Msg("email send failed")
		return s.view(sess), &DispatchError{Op: OpEmail, Err: err}
	}

	threadID := sess.ThreadID
	sess.Reset()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return View{}, fmt.Errorf("save session: %w", err)
	}

	s.log.Info().Str("session", sessionID).Str("threadId", threadID).Str("to", req.To).Msg("email sent")
	return s.view(sess), nil
}

// DefaultSubject returns the subject used to pre-fill the email form.
func (s *Service) DefaultSubject() string {
	return s.cfg.DefaultSubject
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func (s *Service) view(sess travelModel.Session) View {
	status := sess.Status
	if status == "" {
		status = travelModel.StatusIdle
	}
	return View{
		SessionID:       sess.ID,
		ThreadID:        sess.ThreadID,
		TravelInfo:      sess.TravelInfo,
		Status:          status,
		EmailAvailable:  sess.HasTravelInfo(),
		DefaultSender:   s.cfg.DefaultSender,
		DefaultReceiver: s.cfg.DefaultReceiver,
		DefaultSubject:  s.cfg.DefaultSubject,
	}
}
