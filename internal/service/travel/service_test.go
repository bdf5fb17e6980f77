package travel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	travelModel "github.com/zhouzirui/travel-agent/backend/internal/model/travel"
	"github.com/zhouzirui/travel-agent/backend/internal/service/agent"
	"github.com/zhouzirui/travel-agent/backend/internal/service/session"
)

type invokeCall struct {
	threadID string
	messages []*schema.Message
}

type resumeCall struct {
	threadID string
	req      travelModel.EmailRequest
}

type fakeAgent struct {
	mu        sync.Mutex
	reply     string
	status    agent.Status
	invokeErr error
	resumeErr error
	invokes   []invokeCall
	resumes   []resumeCall
	discarded []string
}

func (a *fakeAgent) Invoke(_ context.Context, input agent.Input, threadID string) (*agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invokes = append(a.invokes, invokeCall{threadID: threadID, messages: input.Messages})
	if a.invokeErr != nil {
		return nil, a.invokeErr
	}
	status := a.status
	if status == "" {
		status = agent.StatusPendingEmail
	}
	messages := append(append([]*schema.Message(nil), input.Messages...), schema.AssistantMessage(a.reply, nil))
	return &agent.Result{Messages: messages, Status: status}, nil
}

func (a *fakeAgent) Resume(_ context.Context, threadID string, req travelModel.EmailRequest) (*agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resumes = append(a.resumes, resumeCall{threadID: threadID, req: req})
	if a.resumeErr != nil {
		return nil, a.resumeErr
	}
	return &agent.Result{Messages: []*schema.Message{schema.AssistantMessage("sent", nil)}, Status: agent.StatusCompleted}, nil
}

func (a *fakeAgent) Discard(_ context.Context, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discarded = append(a.discarded, threadID)
	return nil
}

func newTestService(ag agent.Agent) (*Service, session.Store) {
	store := session.NewMemoryStore(time.Hour)
	svc := NewService(ag, store, Config{DefaultSender: "agent@example.com"})
	return svc, store
}

func answeredSession(t *testing.T, svc *Service, ag *fakeAgent) View {
	t.Helper()
	ag.reply = "Found 3 flights..."
	view, err := svc.SubmitQuery(context.Background(), "browser-1", "flights from NYC to Paris next week")
	require.NoError(t, err)
	return view
}

func TestSubmitQueryStoresReply(t *testing.T) {
	ag := &fakeAgent{}
	svc, store := newTestService(ag)

	view := answeredSession(t, svc, ag)

	assert.Equal(t, "Found 3 flights...", view.TravelInfo)
	assert.True(t, view.EmailAvailable)
	assert.Equal(t, travelModel.StatusEmailPending, view.Status)

	require.Len(t, ag.invokes, 1)
	call := ag.invokes[0]
	assert.Equal(t, view.ThreadID, call.threadID)
	require.Len(t, call.messages, 1)
	assert.Equal(t, schema.User, call.messages[0].Role)
	assert.Equal(t, "flights from NYC to Paris next week", call.messages[0].Content)

	stored, err := store.Get(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.Equal(t, "Found 3 flights...", stored.TravelInfo)
	assert.Equal(t, view.ThreadID, stored.ThreadID)
}

func TestSubmitQueryCompletedRunIsAnswered(t *testing.T) {
	ag := &fakeAgent{reply: "done", status: agent.StatusCompleted}
	svc, _ := newTestService(ag)

	view, err := svc.SubmitQuery(context.Background(), "browser-1", "hotels")
	require.NoError(t, err)
	assert.Equal(t, travelModel.StatusAnswered, view.Status)
	assert.True(t, view.EmailAvailable)
}

func TestSubmitQueryRejectsBlankInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		ag := &fakeAgent{reply: "unused"}
		svc, _ := newTestService(ag)

		_, err := svc.SubmitQuery(context.Background(), "browser-1", input)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.True(t, IsValidation(err))
		assert.Empty(t, ag.invokes)
	}
}

func TestSubmitQueryUsesFreshThreadIDs(t *testing.T) {
	ag := &fakeAgent{reply: "answer"}
	svc, _ := newTestService(ag)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		view, err := svc.SubmitQuery(ctx, "browser-1", "query")
		require.NoError(t, err)
		require.NotEmpty(t, view.ThreadID)
		_, dup := seen[view.ThreadID]
		assert.False(t, dup, "thread id %s reused", view.ThreadID)
		seen[view.ThreadID] = struct{}{}
	}
}

func TestSubmitQueryDiscardsReplacedRun(t *testing.T) {
	ag := &fakeAgent{}
	svc, _ := newTestService(ag)

	first := answeredSession(t, svc, ag)
	assert.Empty(t, ag.discarded)

	second, err := svc.SubmitQuery(context.Background(), "browser-1", "hotels in Rome")
	require.NoError(t, err)
	require.NotEqual(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, []string{first.ThreadID}, ag.discarded)
}

func TestRepeatedQueriesKeepOneCheckPoint(t *testing.T) {
	checkpoints := agent.NewMemoryCheckPointStore(time.Hour)
	graphAgent, err := agent.NewGraphAgent(context.Background(), agent.GraphConfig{
		ChatModel:   cannedChatModel{reply: "Found 3 flights..."},
		Mailer:      agent.NewLogMailer(),
		CheckPoints: checkpoints,
	})
	require.NoError(t, err)
	svc, _ := newTestService(graphAgent)
	ctx := context.Background()

	var threads []string
	for i := 0; i < 5; i++ {
		view, err := svc.SubmitQuery(ctx, "browser-1", "flights")
		require.NoError(t, err)
		threads = append(threads, view.ThreadID)
	}
	assert.Equal(t, 1, checkpoints.Len())

	req := travelModel.EmailRequest{From: "agent@example.com", To: "me@example.com", Subject: "Trip"}
	_, err = graphAgent.Resume(ctx, threads[0], req)
	assert.ErrorIs(t, err, agent.ErrNotPaused)

	_, err = svc.SendEmail(ctx, "browser-1", travelModel.EmailRequest{To: "me@example.com", Subject: "Trip"})
	require.NoError(t, err)
	assert.Zero(t, checkpoints.Len())
}

func TestSubmitQueryFailureLeavesSessionUnchanged(t *testing.T) {
	ag := &fakeAgent{}
	svc, store := newTestService(ag)
	before := answeredSession(t, svc, ag)

	ag.invokeErr = errors.New("upstream timeout")
	_, err := svc.SubmitQuery(context.Background(), "browser-1", "another query")
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, OpQuery, dispatchErr.Op)
	assert.Equal(t, "upstream timeout", dispatchErr.Error())
	assert.False(t, IsValidation(err))

	stored, err := store.Get(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.Equal(t, before.ThreadID, stored.ThreadID)
	assert.Equal(t, before.TravelInfo, stored.TravelInfo)
	assert.Empty(t, ag.discarded)
}

func TestSendEmailRequiresTravelInfo(t *testing.T) {
	ag := &fakeAgent{}
	svc, _ := newTestService(ag)

	view, err := svc.State(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.False(t, view.EmailAvailable)

	_, err = svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{To: "me@example.com", Subject: "Trip"})
	assert.ErrorIs(t, err, ErrNoTravelInfo)
	assert.Empty(t, ag.resumes)
}

func TestSendEmailValidatesFields(t *testing.T) {
	tests := []struct {
		name string
		req  travelModel.EmailRequest
		want error
	}{
		{"empty receiver", travelModel.EmailRequest{To: "", Subject: "Trip"}, ErrMissingEmailFields},
		{"blank subject", travelModel.EmailRequest{To: "me@example.com", Subject: "  "}, ErrMissingEmailFields},
		{"malformed receiver", travelModel.EmailRequest{To: "not-an-address", Subject: "Trip"}, ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ag := &fakeAgent{}
			svc, _ := newTestService(ag)
			answeredSession(t, svc, ag)

			_, err := svc.SendEmail(context.Background(), "browser-1", tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
			assert.Empty(t, ag.resumes)
		})
	}
}

func TestSendEmailSuccessClearsSession(t *testing.T) {
	ag := &fakeAgent{}
	svc, store := newTestService(ag)
	answered := answeredSession(t, svc, ag)

	view, err := svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{To: " me@example.com ", Subject: "Travel Information"})
	require.NoError(t, err)

	require.Len(t, ag.resumes, 1)
	assert.Equal(t, answered.ThreadID, ag.resumes[0].threadID)
	assert.Equal(t, travelModel.EmailRequest{From: "agent@example.com", To: "me@example.com", Subject: "Travel Information"}, ag.resumes[0].req)

	assert.Empty(t, view.TravelInfo)
	assert.Empty(t, view.ThreadID)
	assert.False(t, view.EmailAvailable)
	assert.Equal(t, travelModel.StatusIdle, view.Status)

	stored, err := store.Get(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.Empty(t, stored.TravelInfo)
	assert.Empty(t, stored.ThreadID)

	_, err = svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{To: "me@example.com", Subject: "again"})
	assert.ErrorIs(t, err, ErrNoTravelInfo)
}

func TestSendEmailOverridesSender(t *testing.T) {
	ag := &fakeAgent{}
	svc, _ := newTestService(ag)
	answeredSession(t, svc, ag)

	_, err := svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{From: "me@corp.example", To: "you@example.com", Subject: "Trip"})
	require.NoError(t, err)
	require.Len(t, ag.resumes, 1)
	assert.Equal(t, "me@corp.example", ag.resumes[0].req.From)
}

func TestSendEmailFailureLeavesSessionUnchanged(t *testing.T) {
	ag := &fakeAgent{}
	svc, store := newTestService(ag)
	answered := answeredSession(t, svc, ag)

	ag.resumeErr = errors.New("relay refused")
	_, err := svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{To: "me@example.com", Subject: "Trip"})

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, OpEmail, dispatchErr.Op)

	stored, err := store.Get(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.Equal(t, answered.ThreadID, stored.ThreadID)
	assert.Equal(t, answered.TravelInfo, stored.TravelInfo)
	assert.Equal(t, travelModel.StatusEmailPending, stored.Status)

	ag.resumeErr = nil
	_, err = svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{To: "me@example.com", Subject: "Trip"})
	assert.NoError(t, err)
}

func TestSendEmailRequiresPausedRun(t *testing.T) {
	ag := &fakeAgent{reply: "done", status: agent.StatusCompleted}
	svc, _ := newTestService(ag)

	_, err := svc.SubmitQuery(context.Background(), "browser-1", "hotels")
	require.NoError(t, err)

	_, err = svc.SendEmail(context.Background(), "browser-1", travelModel.EmailRequest{To: "me@example.com", Subject: "Trip"})
	assert.ErrorIs(t, err, agent.ErrNotPaused)
	assert.Empty(t, ag.resumes)
}

func TestSessionsAreIsolated(t *testing.T) {
	ag := &fakeAgent{reply: "answer"}
	svc, _ := newTestService(ag)
	ctx := context.Background()

	_, err := svc.SubmitQuery(ctx, "browser-1", "query")
	require.NoError(t, err)

	other, err := svc.State(ctx, "browser-2")
	require.NoError(t, err)
	assert.False(t, other.EmailAvailable)
}

func TestQueryTimeoutApplied(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	blocking := &blockingAgent{}
	svc := NewService(blocking, store, Config{Timeout: 20 * time.Millisecond})

	_, err := svc.SubmitQuery(context.Background(), "browser-1", "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingAgent struct{}

func (blockingAgent) Invoke(ctx context.Context, _ agent.Input, _ string) (*agent.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingAgent) Resume(ctx context.Context, _ string, _ travelModel.EmailRequest) (*agent.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingAgent) Discard(context.Context, string) error { return nil }

type cannedChatModel struct {
	reply string
}

func (m cannedChatModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m cannedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (cannedChatModel) BindTools([]*schema.ToolInfo) error { return nil }
