package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-agent/backend/internal/logger"
	"github.com/zhouzirui/travel-agent/backend/internal/model/travel"
)

const (
	graphName     = "travel_agent"
	nodeModel     = "model"
	nodeSendEmail = "send_email"
)

// ErrEmailRequestMissing is returned when the email step runs without parameters.
var ErrEmailRequestMissing = errors.New("email request missing from resume call")

// runState is the graph-local state saved with every checkpoint.
type runState struct {
	Messages []*schema.Message
	Reply    *schema.Message
}

func init() {
	if err := compose.RegisterSerializableType[*runState]("travel_agent_run_state"); err != nil {
		panic(err)
	}
}

type emailRequestKey struct{}

// withEmailRequest scopes the email parameters to a single resume call.
func withEmailRequest(ctx context.Context, req travel.EmailRequest) context.Context {
	return context.WithValue(ctx, emailRequestKey{}, req)
}

func emailRequestFrom(ctx context.Context) (travel.EmailRequest, bool) {
	req, ok := ctx.Value(emailRequestKey{}).(travel.EmailRequest)
	return req, ok
}

// GraphConfig wires the collaborators of a GraphAgent.
type GraphConfig struct {
	ChatModel   model.ChatModel
	Mailer      Mailer
	CheckPoints CheckPointStore
	// Prompt overrides DefaultPromptTemplate when set.
	Prompt *PromptTemplate
	Now    func() time.Time
}

// GraphAgent answers travel questions with a chat model and pauses every run
// before its email step until Resume is called for the same thread.
type GraphAgent struct {
	runnable    compose.Runnable[[]*schema.Message, *schema.Message]
	checkpoints CheckPointStore
	mailer      Mailer
	prompt      PromptTemplate
	now         func() time.Time
	log         zerolog.Logger
}

// NewGraphAgent compiles the agent graph.
func NewGraphAgent(ctx context.Context, cfg GraphConfig) (*GraphAgent, error) {
	if cfg.ChatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if cfg.Mailer == nil {
		return nil, errors.New("mailer is required")
	}
	if cfg.CheckPoints == nil {
		return nil, errors.New("checkpoint store is required")
	}

	a := &GraphAgent{
		checkpoints: cfg.CheckPoints,
		mailer:      cfg.Mailer,
		prompt:      DefaultPromptTemplate(),
		now:         cfg.Now,
		log:         logger.Component("agent"),
	}
	if cfg.Prompt != nil {
		a.prompt = *cfg.Prompt
	}
	if a.now == nil {
		a.now = time.Now
	}

	g := compose.NewGraph[[]*schema.Message, *schema.Message](
		compose.WithGenLocalState(func(context.Context) *runState { return &runState{} }),
	)

	if err := g.AddChatModelNode(nodeModel, cfg.ChatModel,
		compose.WithStatePreHandler(a.beforeModel),
		compose.WithStatePostHandler(a.afterModel),
		compose.WithNodeName("travel_planner"),
	); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}

	if err := g.AddLambdaNode(nodeSendEmail, compose.InvokableLambda(a.sendEmail),
		compose.WithNodeName("email_sender"),
	); err != nil {
		return nil, fmt.Errorf("add email node: %w", err)
	}

	if err := g.AddEdge(compose.START, nodeModel); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeModel, nodeSendEmail); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeSendEmail, compose.END); err != nil {
		return nil, err
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithCheckPointStore(cfg.CheckPoints),
		compose.WithInterruptBeforeNodes([]string{nodeSendEmail}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile travel agent graph: %w", err)
	}

	a.runnable = runnable
	return a, nil
}

// Invoke runs the planner for threadID. A successful run always stops before
// the email step and reports StatusPendingEmail.
func (a *GraphAgent) Invoke(ctx context.Context, input Input, threadID string) (*Result, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	if len(input.Messages) == 0 {
		return nil, ErrNoMessages
	}

	out, err := a.runnable.Invoke(ctx, input.Messages, compose.WithCheckPointID(threadID))
	if err == nil {
		// Only reachable if the graph is compiled without the email interrupt.
		messages := append(append([]*schema.Message(nil), input.Messages...), out)
		return &Result{Messages: messages, Status: StatusCompleted}, nil
	}

	info, interrupted := compose.ExtractInterruptInfo(err)
	if !interrupted {
		return nil, fmt.Errorf("failed to run travel agent: %w", err)
	}

	state, ok := info.State.(*runState)
	if !ok || state.Reply == nil {
		return nil, ErrEmptyReply
	}

	messages := append(append([]*schema.Message(nil), state.Messages...), state.Reply)
	a.log.Info().
		Str("threadId", threadID).
		Int("replyLength", len(state.Reply.Content)).
		Msg("run paused before email step")
	return &Result{Messages: messages, Status: StatusPendingEmail}, nil
}

// Resume continues the paused run of threadID and delivers its answer to req.To.
func (a *GraphAgent) Resume(ctx context.Context, threadID string, req travel.EmailRequest) (*Result, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}

	_, paused, err := a.checkpoints.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !paused {
		return nil, ErrNotPaused
	}

	out, err := a.runnable.Invoke(withEmailRequest(ctx, req), nil, compose.WithCheckPointID(threadID))
	if err != nil {
		return nil, fmt.Errorf("failed to resume travel agent: %w", err)
	}

	if err := a.checkpoints.Delete(ctx, threadID); err != nil {
		a.log.Warn().Err(err).Str("threadId", threadID).Msg("failed to drop finished checkpoint")
	}

	a.log.Info().Str("threadId", threadID).Msg("email step completed")
	return &Result{Messages: []*schema.Message{out}, Status: StatusCompleted}, nil
}

// Discard drops the checkpoint of threadID.
func (a *GraphAgent) Discard(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrThreadIDRequired
	}
	if err := a.checkpoints.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("discard checkpoint: %w", err)
	}
	return nil
}

func (a *GraphAgent) beforeModel(_ context.Context, in []*schema.Message, state *runState) ([]*schema.Message, error) {
	state.Messages = append([]*schema.Message(nil), in...)

	prompted := make([]*schema.Message, 0, len(in)+1)
	prompted = append(prompted, schema.SystemMessage(a.prompt.BuildSystemPrompt(a.now())))
	prompted = append(prompted, in...)
	return prompted, nil
}

func (a *GraphAgent) afterModel(_ context.Context, out *schema.Message, state *runState) (*schema.Message, error) {
	if out == nil {
		return nil, ErrEmptyReply
	}
	state.Reply = out
	return out, nil
}

func (a *GraphAgent) sendEmail(ctx context.Context, reply *schema.Message) (*schema.Message, error) {
	req, ok := emailRequestFrom(ctx)
	if !ok {
		return nil, ErrEmailRequestMissing
	}
	req = req.Normalize()
	if !req.Complete() {
		return nil, fmt.Errorf("incomplete email request: from=%q to=%q subject=%q", req.From, req.To, req.Subject)
	}
	if reply == nil {
		return nil, ErrEmptyReply
	}

	body, err := renderEmailBody(req.Subject, reply.Content)
	if err != nil {
		return nil, err
	}

	if err := a.mailer.Send(ctx, Email{
		From:     req.From,
		To:       req.To,
		Subject:  req.Subject,
		HTMLBody: body,
	}); err != nil {
		return nil, err
	}

	return schema.AssistantMessage(fmt.Sprintf("Email sent to %s.", req.To), nil), nil
}
