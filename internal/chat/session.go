// Package chat holds the streaming chat session: it validates and rate-limits
// sends, posts them to the chat backend and folds the returned event stream
// into a single evolving assistant message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"designchat/internal/backend"
	"designchat/internal/models"
	"designchat/internal/sse"
)

const DefaultMaxMessages = 100

// AuthProvider supplies the signed-in state and short-lived bearer tokens.
type AuthProvider interface {
	IsSignedIn() bool
	GetToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Backend opens the chat event stream.
type Backend interface {
	StreamChat(ctx context.Context, token string, req backend.ChatRequest) (io.ReadCloser, error)
}

type Level string

const (
	LevelError   Level = "error"
	LevelWarn    Level = "warn"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
)

// Notifier receives transient, fire-and-forget notifications.
type Notifier interface {
	Notify(level Level, text string)
}

type NotifierFunc func(level Level, text string)

func (f NotifierFunc) Notify(level Level, text string) { f(level, text) }

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSending   Status = "sending"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// State is a point-in-time copy of a session.
type State struct {
	ConversationID string                       `json:"conversationId"`
	Messages       []models.ConversationMessage `json:"messages"`
	IsLoading      bool                         `json:"isLoading"`
	Error          string                       `json:"error,omitempty"`
	Status         Status                       `json:"status"`
	MessageCount   int                          `json:"messageCount"`
	HasMessages    bool                         `json:"hasMessages"`
	CanSendMessage bool                         `json:"canSendMessage"`
}

type Option func(*Session)

func WithMaxMessages(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Session) { s.limiter = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithOnChange registers a callback that receives a fresh State after every
// mutation. It is called without the session lock held.
func WithOnChange(fn func(State)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithOnError registers a callback for every user-visible error string.
func WithOnError(fn func(string)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithConversationID pins the conversation id instead of minting one lazily.
func WithConversationID(id string) Option {
	return func(s *Session) { s.conversationID = strings.TrimSpace(id) }
}

// streamRun is the cancellation handle of one send.
type streamRun struct {
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   atomic.Bool // cancelled by the session, not by the caller
	streaming atomic.Bool
	threadID  string
	replyID   string
}

func (r *streamRun) stop() {
	r.stopped.Store(true)
	r.cancel()
}

// Session is one conversation's streaming chat state machine. At most one
// send is active at a time; starting a new one cancels the previous.
type Session struct {
	auth     AuthProvider
	backend  Backend
	notifier Notifier
	limiter  RateLimiter
	now      func() time.Time
	onChange func(State)
	onError  func(string)

	maxMessages int
	signedIn    atomic.Bool // last answer of auth.IsSignedIn

	mu             sync.Mutex
	messages       []models.ConversationMessage
	loading        bool
	lastErr        string
	conversationID string
	active         *streamRun
	sends          []time.Time
}

func NewSession(auth AuthProvider, be Backend, opts ...Option) *Session {
	s := &Session{
		auth:        auth,
		backend:     be,
		limiter:     DefaultRateLimiter(),
		now:         time.Now,
		maxMessages: DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.refreshSignedIn()
	return s
}

// refreshSignedIn queries the auth provider. Callers must not hold mu.
func (s *Session) refreshSignedIn() bool {
	ok := s.auth != nil && s.auth.IsSignedIn()
	s.signedIn.Store(ok)
	return ok
}

// ConversationID returns the session's thread id, minting it on first use.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationIDLocked()
}

func (s *Session) conversationIDLocked() string {
	if s.conversationID == "" {
		s.conversationID = NewConversationID()
	}
	return s.conversationID
}

func NewConversationID() string {
	return "chat-" + uuid.NewString()
}

func newMessageID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// SendMessageStreaming sends text and streams the reply into a placeholder
// assistant message. It blocks until the stream ends, fails or is cancelled.
// On success it returns a copy of the final assistant message.
func (s *Session) SendMessageStreaming(ctx context.Context, text string) (*models.ConversationMessage, error) {
	if !s.refreshSignedIn() {
		s.reportError(ErrNotSignedIn.Error())
		return nil, ErrNotSignedIn
	}
	if err := ValidateMessage(text); err != nil {
		s.reportError(err.Error())
		return nil, err
	}

	s.mu.Lock()
	now := s.now()
	s.sends = s.limiter.Prune(s.sends, now)
	if err := s.limiter.Allow(s.sends, now); err != nil {
		s.mu.Unlock()
		s.reportError(err.Error())
		return nil, err
	}
	run := s.beginLocked(ctx, text, now)
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(state)

	defer s.finish(run)

	err := s.stream(run, text)
	if err == nil {
		return s.message(run.replyID), nil
	}
	if run.stopped.Load() {
		return nil, ErrCancelled
	}

	msg := ClassifyError(err)
	log.Printf("chat: send on %s failed: %v", run.threadID, err)

	s.mu.Lock()
	s.lastErr = msg
	s.appendLocked(models.ConversationMessage{
		ID:        newMessageID(s.now()),
		Role:      models.RoleAssistant,
		Content:   "Sorry, I encountered an error: " + msg,
		Timestamp: s.now(),
		Metadata:  &models.AssistantMetadata{Error: true},
	})
	state = s.snapshotLocked()
	s.mu.Unlock()

	s.notify(LevelError, msg)
	s.changed(state)
	return nil, &SendError{Message: msg, Err: err}
}

// beginLocked supersedes any active send, appends the user message and the
// placeholder reply, and returns the new send's handle.
func (s *Session) beginLocked(parent context.Context, text string, now time.Time) *streamRun {
	if prev := s.active; prev != nil {
		prev.stop()
	}
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)
	run := &streamRun{ctx: ctx, cancel: cancel, threadID: s.conversationIDLocked()}
	s.active = run
	s.loading = true
	s.lastErr = ""
	s.sends = append(s.sends, now)

	s.appendLocked(models.ConversationMessage{
		ID:        newMessageID(now),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	})
	reply := models.ConversationMessage{
		ID:        newMessageID(now),
		Role:      models.RoleAssistant,
		Timestamp: now,
		Metadata:  &models.AssistantMetadata{},
	}
	run.replyID = reply.ID
	s.appendLocked(reply)
	return run
}

func (s *Session) stream(run *streamRun, text string) error {
	token, err := s.auth.GetToken(run.ctx, true)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNoToken
	}
	if err := run.ctx.Err(); err != nil {
		return err
	}

	body, err := s.backend.StreamChat(run.ctx, token, backend.ChatRequest{
		ThreadID: run.threadID,
		Message:  text,
		Stream:   true,
	})
	if err != nil {
		return err
	}
	defer body.Close()
	if err := run.ctx.Err(); err != nil {
		return err
	}

	run.streaming.Store(true)
	s.publish()

	reader := sse.NewReader(body)
	for {
		payloads, readErr := reader.Chunk()
		if err := run.ctx.Err(); err != nil {
			return err
		}
		for _, p := range payloads {
			s.applyPayload(run, p)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

func (s *Session) applyPayload(run *streamRun, payload string) {
	frame, err := DecodeFrame([]byte(payload))
	if err != nil {
		return
	}
	if frame.IsDone() {
		return
	}
	if msg, ok := frame.ErrorMessage(); ok {
		if s.isActive(run) {
			s.reportError(msg)
		}
		return
	}

	s.mu.Lock()
	if s.active != run || run.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	idx := s.indexLocked(run.replyID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	frame.Apply(&s.messages[idx])
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(state)
}

// finish runs on every exit path of a send. It only resets loading when the
// send is still the active one, so a superseded send leaves its successor alone.
func (s *Session) finish(run *streamRun) {
	s.mu.Lock()
	if s.active == run {
		s.active = nil
		s.loading = false
	}
	state := s.snapshotLocked()
	s.mu.Unlock()
	run.cancel()
	s.changed(state)
}

// CancelRequest stops the active send, if any, and clears the loading flag.
// The partial reply is kept and no error is recorded.
func (s *Session) CancelRequest() {
	s.mu.Lock()
	run := s.active
	if run == nil {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.loading = false
	state := s.snapshotLocked()
	s.mu.Unlock()
	run.stop()
	s.changed(state)
}

// ClearMessages empties the transcript and the error. The conversation id and
// rate-limit history are kept.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	s.messages = nil
	s.lastErr = ""
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(state)
}

func (s *Session) DeleteMessage(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(state)
	return true
}

// EditMessage replaces a message's content. The timestamp is left untouched.
func (s *Session) EditMessage(id, content string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[idx].Content = content
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(state)
	return true
}

// SetMessages replaces the transcript, e.g. when restoring a stored
// conversation. User messages still inside the rate window count as sends.
func (s *Session) SetMessages(msgs []models.ConversationMessage) {
	s.mu.Lock()
	s.messages = nil
	for _, m := range msgs {
		s.appendLocked(m.Clone())
	}
	seen := make(map[int64]bool, len(s.sends))
	for _, ts := range s.sends {
		seen[ts.UnixNano()] = true
	}
	for _, ts := range UserTimestamps(msgs) {
		if !seen[ts.UnixNano()] {
			s.sends = append(s.sends, ts)
			seen[ts.UnixNano()] = true
		}
	}
	s.sends = s.limiter.Prune(s.sends, s.now())
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(state)
}

func (s *Session) Messages() []models.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneMessages(s.messages)
}

func (s *Session) State() State {
	s.refreshSignedIn()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close cancels any active send. The session stays usable.
func (s *Session) Close() {
	s.CancelRequest()
}

func (s *Session) snapshotLocked() State {
	st := State{
		ConversationID: s.conversationIDLocked(),
		Messages:       models.CloneMessages(s.messages),
		IsLoading:      s.loading,
		Error:          s.lastErr,
		MessageCount:   len(s.messages),
		HasMessages:    len(s.messages) > 0,
	}
	st.CanSendMessage = !s.loading && s.signedIn.Load()

	switch {
	case s.loading && s.active != nil && s.active.streaming.Load():
		st.Status = StatusStreaming
	case s.loading:
		st.Status = StatusSending
	case s.lastErr != "":
		st.Status = StatusError
	default:
		st.Status = StatusIdle
	}
	return st
}

func (s *Session) appendLocked(m models.ConversationMessage) {
	s.messages = append(s.messages, m)
	if over := len(s.messages) - s.maxMessages; over > 0 {
		s.messages = append([]models.ConversationMessage(nil), s.messages[over:]...)
	}
}

func (s *Session) indexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) message(id string) *models.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return nil
	}
	m := s.messages[idx].Clone()
	return &m
}

func (s *Session) isActive(run *streamRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == run && run.ctx.Err() == nil
}

// reportError records a user-visible error and fans it out.
func (s *Session) reportError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(LevelError, msg)
	s.changed(state)
}

func (s *Session) notify(level Level, msg string) {
	if s.notifier != nil {
		s.notifier.Notify(level, msg)
	}
	if level == LevelError && s.onError != nil {
		s.onError(msg)
	}
}

func (s *Session) publish() {
	s.changed(s.State())
}

func (s *Session) changed(state State) {
	if s.onChange != nil {
		s.onChange(state)
	}
}
