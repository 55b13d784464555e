package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"designchat/internal/backend"
	"designchat/internal/models"
)

type fakeAuth struct {
	signedIn bool
	token    string
	err      error
	calls    int
	forced   bool
}

func (f *fakeAuth) IsSignedIn() bool { return f.signedIn }

func (f *fakeAuth) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	f.calls++
	f.forced = forceRefresh
	return f.token, f.err
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []backend.ChatRequest
	tokens   []string
	open     func(ctx context.Context) (io.ReadCloser, error)
}

func (f *fakeBackend) StreamChat(ctx context.Context, token string, req backend.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, token)
	open := f.open
	f.mu.Unlock()
	if open == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return open(ctx)
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func streamOf(records ...string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(records, ""))), nil
	}
}

func record(payload string) string {
	return "data: " + payload + "\n\n"
}

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) Notify(level Level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, string(level)+":"+text)
}

func (n *notes) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func newTestSession(be *fakeBackend, opts ...Option) (*Session, *fakeAuth, *notes) {
	auth := &fakeAuth{signedIn: true, token: "tok"}
	n := &notes{}
	opts = append([]Option{WithNotifier(n)}, opts...)
	return NewSession(auth, be, opts...), auth, n
}

func lastAssistant(t *testing.T, s *Session) models.ConversationMessage {
	t.Helper()
	msgs := s.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant {
			return msgs[i]
		}
	}
	t.Fatalf("no assistant message in %d messages", len(msgs))
	return models.ConversationMessage{}
}

func TestSend_RejectsBlankAndOverlongBeforeNetwork(t *testing.T) {
	be := &fakeBackend{}
	s, _, n := newTestSession(be)

	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := s.SendMessageStreaming(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	_, err := s.SendMessageStreaming(context.Background(), strings.Repeat("x", 4001))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	assert.Equal(t, 0, be.calls())
	assert.Empty(t, s.Messages())
	assert.Equal(t, "message too long (max 4000 characters)", s.Err())
	assert.Contains(t, n.all(), "error:message cannot be empty")
	assert.False(t, s.IsLoading())

	_, err = s.SendMessageStreaming(context.Background(), strings.Repeat("x", 4000))
	require.NoError(t, err)
	assert.Equal(t, 1, be.calls())
}

func TestSend_RequiresSignIn(t *testing.T) {
	be := &fakeBackend{}
	s, auth, _ := newTestSession(be)
	auth.signedIn = false

	_, err := s.SendMessageStreaming(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, 0, be.calls())
	assert.Equal(t, 0, auth.calls)
	assert.Empty(t, s.Messages())
	assert.False(t, s.State().CanSendMessage)
}

func TestSend_RateLimitFromRestoredHistory(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	var history []models.ConversationMessage
	for i := 0; i < 10; i++ {
		history = append(history, models.ConversationMessage{
			ID: "u" + string(rune('a'+i)), Role: models.RoleUser, Content: "hi",
			Timestamp: now.Add(-time.Duration(i+1) * time.Second),
		})
	}

	be := &fakeBackend{}
	s, _, _ := newTestSession(be, WithClock(func() time.Time { return now }))
	s.SetMessages(history)

	_, err := s.SendMessageStreaming(context.Background(), "one more")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "rate limit exceeded", s.Err())
	assert.Equal(t, 0, be.calls())
	assert.Len(t, s.Messages(), 10)

	history[9].Timestamp = now.Add(-61 * time.Second)
	s2, _, _ := newTestSession(be, WithClock(func() time.Time { return now }))
	s2.SetMessages(history)
	_, err = s2.SendMessageStreaming(context.Background(), "one more")
	assert.NoError(t, err)
}

func TestSend_RateLimitSurvivesClearAndCap(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	clock := now
	be := &fakeBackend{}
	s, _, _ := newTestSession(be, WithMaxMessages(4), WithClock(func() time.Time { return clock }))

	for i := 0; i < 10; i++ {
		_, err := s.SendMessageStreaming(context.Background(), "msg")
		require.NoError(t, err)
		clock = clock.Add(time.Second)
	}
	s.ClearMessages()

	_, err := s.SendMessageStreaming(context.Background(), "msg")
	assert.ErrorIs(t, err, ErrRateLimited)

	clock = now.Add(60 * time.Second)
	_, err = s.SendMessageStreaming(context.Background(), "msg")
	assert.NoError(t, err)
}

func TestSend_AppliesFramesInOrder(t *testing.T) {
	be := &fakeBackend{open: streamOf(
		record(`{"response":"A","data":{"generation_progress":{"p":1}}}`),
		record(`{"response":"B","data":{"design_plan":{"x":1}}}`),
	)}
	s, auth, _ := newTestSession(be)

	reply, err := s.SendMessageStreaming(context.Background(), "go")
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, "B", reply.Content)
	assert.JSONEq(t, `{"p":1}`, string(reply.Metadata.GenerationProgress))
	assert.JSONEq(t, `{"x":1}`, string(reply.Metadata.DesignPlan))
	assert.True(t, auth.forced)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "go", msgs[0].Content)
	assert.Nil(t, msgs[0].Metadata)
	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.False(t, s.IsLoading())
	assert.Equal(t, StatusIdle, s.State().Status)
}

func TestSend_RequestCarriesStableThreadAndToken(t *testing.T) {
	be := &fakeBackend{}
	s, _, _ := newTestSession(be)

	_, err := s.SendMessageStreaming(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.SendMessageStreaming(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, be.requests, 2)
	assert.True(t, strings.HasPrefix(be.requests[0].ThreadID, "chat-"))
	assert.Equal(t, be.requests[0].ThreadID, be.requests[1].ThreadID)
	assert.Equal(t, s.ConversationID(), be.requests[0].ThreadID)
	assert.Equal(t, "second", be.requests[1].Message)
	assert.True(t, be.requests[1].Stream)
	assert.Equal(t, []string{"tok", "tok"}, be.tokens)
}

func TestSend_SkipsMalformedFrames(t *testing.T) {
	be := &fakeBackend{open: streamOf(
		"data: {not valid json\n\n",
		record(`{"response":"valid","phase":"planning"}`),
	)}
	s, _, n := newTestSession(be)

	reply, err := s.SendMessageStreaming(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "valid", reply.Content)
	assert.Equal(t, "planning", reply.Metadata.Phase)
	assert.Empty(t, s.Err())
	assert.Empty(t, n.all())
}

func TestSend_ErrorFrameRecordedAndLoopContinues(t *testing.T) {
	be := &fakeBackend{open: streamOf(
		record(`{"event":"error","message":"boom"}`),
		record(`{"response":"after"}`),
		record(`{"event":"done"}`),
	)}
	var onErr []string
	s, _, n := newTestSession(be, WithOnError(func(msg string) { onErr = append(onErr, msg) }))

	reply, err := s.SendMessageStreaming(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "after", reply.Content)
	assert.Equal(t, "boom", s.Err())
	assert.Equal(t, []string{"error:boom"}, n.all())
	assert.Equal(t, []string{"boom"}, onErr)
	assert.Len(t, s.Messages(), 2)
}

func TestSend_DoneFrameChangesNothing(t *testing.T) {
	be := &fakeBackend{open: streamOf(
		record(`{"response":"x","phase":"complete"}`),
		record(`{"event":"done","response":"ignored","phase":"initial"}`),
	)}
	s, _, _ := newTestSession(be)

	reply, err := s.SendMessageStreaming(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "x", reply.Content)
	assert.Equal(t, "complete", reply.Metadata.Phase)
}

func TestSend_EndToEndDesignFlow(t *testing.T) {
	be := &fakeBackend{open: streamOf(
		record(`{"thread_id":"t","phase":"planning","response":"Here is the plan","data":{"design_plan":{"plan_id":"p1","screens":[{"screen_id":"s1","title":"Hero"},{"screen_id":"s2","title":"Pricing"}]}},"requires_approval":false}`),
		record(`{"thread_id":"t","phase":"generating","response":"Working","data":{"generation_progress":{"current_screen":1,"total_screens":2}},"requires_approval":false}`),
		record(`{"thread_id":"t","phase":"complete","response":"Done","data":{"generated_screens":[{"id":"s1","title":"Hero","content":"<div/>"},{"id":"s2","title":"Pricing","content":"<div/>"}]},"requires_approval":false}`),
	)}
	s, _, _ := newTestSession(be)

	_, err := s.SendMessageStreaming(context.Background(), "Design me a landing page")
	require.NoError(t, err)

	reply := lastAssistant(t, s)
	md := reply.Metadata
	require.NotNil(t, md)
	assert.Equal(t, "Done", reply.Content)
	assert.Equal(t, "complete", md.Phase)
	assert.Equal(t, models.PhaseComplete, md.NormalizedPhase())
	assert.Len(t, md.GeneratedScreens, 2)

	plan, ok, err := md.Plan()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, plan.Screens, 2)

	progress, ok, err := md.Progress()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, progress.CurrentScreen)
	assert.Equal(t, 2, progress.TotalScreens)

	screens, err := md.Screens()
	require.NoError(t, err)
	assert.Equal(t, "Pricing", screens[1].Title)
}

func TestSend_NoTokenAppendsErrorMessage(t *testing.T) {
	be := &fakeBackend{}
	s, auth, n := newTestSession(be)
	auth.token = ""

	_, err := s.SendMessageStreaming(context.Background(), "hello")
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, "failed to get authentication token", sendErr.Message)
	assert.Equal(t, 0, be.calls())

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "", msgs[1].Content, "placeholder left in place")
	assert.False(t, msgs[1].Metadata.Error)
	assert.True(t, msgs[2].Metadata.Error)
	assert.Equal(t, "Sorry, I encountered an error: failed to get authentication token", msgs[2].Content)
	assert.Equal(t, "failed to get authentication token", s.Err())
	assert.Equal(t, []string{"error:failed to get authentication token"}, n.all())
	assert.False(t, s.IsLoading())
	assert.Equal(t, StatusError, s.State().Status)
}

func TestSend_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status", &backend.StatusError{StatusCode: 502}, "request failed (502)"},
		{"timeout", context.DeadlineExceeded, "request timed out, please try again"},
		{"timeout text", errors.New("net/http: timeout awaiting response headers"), "request timed out, please try again"},
		{"other", errors.New("connection refused"), "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &fakeBackend{open: func(context.Context) (io.ReadCloser, error) { return nil, tt.err }}
			s, _, _ := newTestSession(be)

			_, err := s.SendMessageStreaming(context.Background(), "hello")
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Equal(t, tt.want, s.Err())
			assert.True(t, lastAssistant(t, s).Metadata.Error)
		})
	}
}

func TestSend_CallerContextCancelledIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	be := &fakeBackend{open: func(context.Context) (io.ReadCloser, error) {
		cancel()
		return io.NopCloser(strings.NewReader(record(`{"response":"late"}`))), nil
	}}
	s, _, _ := newTestSession(be)

	_, err := s.SendMessageStreaming(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, "request was cancelled", s.Err())
	assert.True(t, lastAssistant(t, s).Metadata.Error)
}

// pipeBackend hands out one pipe per send so the test controls chunk timing.
type pipeBackend struct {
	fakeBackend
	pipes chan *io.PipeWriter
}

func newPipeBackend() *pipeBackend {
	pb := &pipeBackend{pipes: make(chan *io.PipeWriter, 4)}
	pb.open = func(context.Context) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		pb.pipes <- pw
		return pr, nil
	}
	return pb
}

func TestCancelRequest_StopsFurtherMutation(t *testing.T) {
	pb := newPipeBackend()
	s, _, n := newTestSession(&pb.fakeBackend)

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessageStreaming(context.Background(), "go")
		done <- err
	}()

	pw := <-pb.pipes
	_, err := pw.Write([]byte(record(`{"response":"A","phase":"planning"}`)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return lastAssistant(t, s).Content == "A" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusStreaming, s.State().Status)

	s.CancelRequest()
	assert.False(t, s.IsLoading())

	_, _ = pw.Write([]byte(record(`{"response":"B","phase":"complete","data":{"design_plan":{"x":1}}}`)))
	_ = pw.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("send did not return after cancel")
	}

	reply := lastAssistant(t, s)
	assert.Equal(t, "A", reply.Content)
	assert.Equal(t, "planning", reply.Metadata.Phase)
	assert.Empty(t, reply.Metadata.DesignPlan)
	assert.Empty(t, s.Err())
	assert.Empty(t, n.all())
	assert.Len(t, s.Messages(), 2)
	assert.False(t, s.IsLoading())

	s.CancelRequest()
}

func TestSend_NewSendSupersedesActiveStream(t *testing.T) {
	pb := newPipeBackend()
	s, _, _ := newTestSession(&pb.fakeBackend)

	first := make(chan error, 1)
	go func() {
		_, err := s.SendMessageStreaming(context.Background(), "first")
		first <- err
	}()
	pw1 := <-pb.pipes

	second := make(chan error, 1)
	go func() {
		_, err := s.SendMessageStreaming(context.Background(), "second")
		second <- err
	}()
	pw2 := <-pb.pipes

	// The first send is blocked reading; feed it one more chunk so it notices.
	_, _ = pw1.Write([]byte(record(`{"response":"stale"}`)))
	_ = pw1.Close()
	assert.ErrorIs(t, <-first, ErrCancelled)
	assert.True(t, s.IsLoading(), "superseded send must not clear the new send's loading flag")

	_, err := pw2.Write([]byte(record(`{"response":"fresh"}`)))
	require.NoError(t, err)
	_ = pw2.Close()
	require.NoError(t, <-second)

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "", msgs[1].Content)
	assert.Equal(t, "fresh", msgs[3].Content)
	assert.False(t, s.IsLoading())
	assert.Empty(t, s.Err())
}

func TestSession_MessageCapDropsOldest(t *testing.T) {
	be := &fakeBackend{open: streamOf(record(`{"response":"r"}`))}
	s, _, _ := newTestSession(be, WithMaxMessages(3))

	_, err := s.SendMessageStreaming(context.Background(), "one")
	require.NoError(t, err)
	reply, err := s.SendMessageStreaming(context.Background(), "two")
	require.NoError(t, err)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "r", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, reply.ID, msgs[2].ID)
}

func TestSession_ClearDeleteEdit(t *testing.T) {
	be := &fakeBackend{open: streamOf(record(`{"response":"r"}`))}
	s, _, _ := newTestSession(be)
	id := s.ConversationID()

	_, err := s.SendMessageStreaming(context.Background(), "one")
	require.NoError(t, err)
	msgs := s.Messages()
	require.Len(t, msgs, 2)

	assert.True(t, s.EditMessage(msgs[0].ID, "uno"))
	assert.False(t, s.EditMessage("missing", "x"))
	edited := s.Messages()
	assert.Equal(t, "uno", edited[0].Content)
	assert.Equal(t, msgs[0].Timestamp, edited[0].Timestamp)

	assert.True(t, s.DeleteMessage(msgs[0].ID))
	assert.False(t, s.DeleteMessage(msgs[0].ID))
	left := s.Messages()
	require.Len(t, left, 1)
	assert.Equal(t, msgs[1].ID, left[0].ID)

	s.reportError("stale")
	s.ClearMessages()
	st := s.State()
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.Error)
	assert.False(t, st.HasMessages)
	assert.Equal(t, id, st.ConversationID)
}

func TestSession_MessagesAreCopies(t *testing.T) {
	be := &fakeBackend{open: streamOf(record(`{"response":"r","phase":"planning"}`))}
	s, _, _ := newTestSession(be)
	_, err := s.SendMessageStreaming(context.Background(), "one")
	require.NoError(t, err)

	msgs := s.Messages()
	msgs[1].Content = "mutated"
	msgs[1].Metadata.Phase = "mutated"

	again := s.Messages()
	assert.Equal(t, "r", again[1].Content)
	assert.Equal(t, "planning", again[1].Metadata.Phase)
}

func TestSession_OnChangeSeesLoadingLifecycle(t *testing.T) {
	be := &fakeBackend{open: streamOf(record(`{"response":"r"}`))}
	var mu sync.Mutex
	var states []State
	s, _, _ := newTestSession(be, WithOnChange(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}))

	_, err := s.SendMessageStreaming(context.Background(), "one")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.True(t, states[0].IsLoading)
	assert.Equal(t, StatusSending, states[0].Status)
	assert.Equal(t, 2, states[0].MessageCount)
	last := states[len(states)-1]
	assert.False(t, last.IsLoading)
	assert.True(t, last.CanSendMessage)
	assert.Equal(t, "r", last.Messages[1].Content)
}

func TestCancelRequest_NoActiveIsNoop(t *testing.T) {
	s, _, _ := newTestSession(&fakeBackend{})
	s.CancelRequest()
	s.Close()
	assert.False(t, s.IsLoading())
	assert.Empty(t, s.Err())
}

func TestSession_PinnedConversationID(t *testing.T) {
	s := NewSession(&fakeAuth{}, &fakeBackend{}, WithConversationID(" chat-fixed "))
	assert.Equal(t, "chat-fixed", s.ConversationID())
}

func TestSend_FrameWithWrongTypedKeyStillApplied(t *testing.T) {
	be := &fakeBackend{open: streamOf(
		record(`{"response":"hello","phase":2,"requires_approval":"true","thread_id":123}`),
		record(`{"response":"world","data":"n/a","error":{"code":1}}`),
	)}
	s, _, n := newTestSession(be)

	reply, err := s.SendMessageStreaming(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "world", reply.Content)
	assert.Empty(t, reply.Metadata.Phase)
	assert.Empty(t, s.Err())
	assert.Empty(t, n.all())
}

// reentrantAuth calls back into the session, which deadlocks if the session
// asks it anything while holding its own lock.
type reentrantAuth struct {
	session *Session
	calls   atomic.Int32
}

func (a *reentrantAuth) IsSignedIn() bool {
	a.calls.Add(1)
	if a.session != nil {
		_ = a.session.IsLoading()
	}
	return true
}

func (a *reentrantAuth) GetToken(context.Context, bool) (string, error) { return "tok", nil }

func TestSession_AuthIsNotQueriedUnderLock(t *testing.T) {
	auth := &reentrantAuth{}
	be := &fakeBackend{open: streamOf(record(`{"response":"r"}`))}
	s := NewSession(auth, be)
	auth.session = s

	done := make(chan State, 1)
	go func() {
		_, err := s.SendMessageStreaming(context.Background(), "hi")
		assert.NoError(t, err)
		s.ClearMessages()
		s.CancelRequest()
		done <- s.State()
	}()

	select {
	case st := <-done:
		assert.True(t, st.CanSendMessage)
		assert.Positive(t, auth.calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("session deadlocked calling the auth provider")
	}
}
