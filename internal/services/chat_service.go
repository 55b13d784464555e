package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"designchat/internal/backend"
	"designchat/internal/chat"
	"designchat/internal/events"
	"designchat/internal/models"
)

const (
	approveMessage = "approve"
	sessionExpired = "your session has expired, please sign in again"
)

// BackendFactory builds the chat backend for a base URL.
type BackendFactory func(baseURL string) chat.Backend

// ChatService is the frontend's entry point to chat. It keeps one live
// session per open conversation in a bounded LRU; evicting a session cancels
// its in-flight send.
type ChatService struct {
	auth          chat.AuthProvider
	emitter       *EventEmitterService
	settings      AppSettingsService
	conversations ConversationService
	defaults      models.AppSettings
	newBackend    BackendFactory
	sessionOpts   []chat.Option

	mu       sync.Mutex
	sessions *lru.Cache[string, *chat.Session]
}

type ChatServiceOption func(*ChatService)

func WithBackendFactory(fn BackendFactory) ChatServiceOption {
	return func(c *ChatService) { c.newBackend = fn }
}

// WithSessionOptions appends options to every session the service creates.
func WithSessionOptions(opts ...chat.Option) ChatServiceOption {
	return func(c *ChatService) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

func NewChatService(
	auth chat.AuthProvider,
	emitter *EventEmitterService,
	settings AppSettingsService,
	conversations ConversationService,
	defaults models.AppSettings,
	maxSessions int,
	opts ...ChatServiceOption,
) (*ChatService, error) {
	if auth == nil {
		return nil, errors.New("auth provider is required")
	}
	if emitter == nil {
		emitter = NewEventEmitterService()
	}
	c := &ChatService{
		auth:          auth,
		emitter:       emitter,
		settings:      settings,
		conversations: conversations,
		defaults:      defaults,
		newBackend: func(baseURL string) chat.Backend {
			return backend.NewClient(baseURL)
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := lru.NewWithEvict[string, *chat.Session](maxSessions, func(id string, s *chat.Session) {
		s.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	c.sessions = cache
	return c, nil
}

// Shutdown cancels every in-flight send.
func (c *ChatService) Shutdown() {
	c.sessions.Purge()
}

// NewConversation starts an empty conversation and returns its state.
func (c *ChatService) NewConversation() (chat.State, error) {
	id := chat.NewConversationID()
	s := c.newSession(id)

	c.mu.Lock()
	c.sessions.Add(id, s)
	c.mu.Unlock()

	return s.State(), nil
}

// OpenConversation makes a stored conversation live and returns its state.
func (c *ChatService) OpenConversation(conversationID string) (chat.State, error) {
	s, err := c.session(conversationID)
	if err != nil {
		return chat.State{}, err
	}
	return s.State(), nil
}

func (c *ChatService) GetState(conversationID string) (chat.State, error) {
	return c.OpenConversation(conversationID)
}

// SendMessage blocks until the reply stream finishes and returns the final
// assistant message.
func (c *ChatService) SendMessage(conversationID, text string) (*models.ConversationMessage, error) {
	s, err := c.session(conversationID)
	if err != nil {
		return nil, err
	}
	id := s.ConversationID()

	reply, err := s.SendMessageStreaming(c.emitter.Context(id), text)
	if errors.Is(err, backend.ErrUnauthorized) {
		c.emitter.AuthRequired(id, sessionExpired)
	}
	if !isPrecondition(err) {
		c.persist(id, s)
	}
	return reply, err
}

// ApprovePlan accepts the pending design plan.
func (c *ChatService) ApprovePlan(conversationID string) (*models.ConversationMessage, error) {
	return c.SendMessage(conversationID, approveMessage)
}

// GetDesignView decodes the design state of the newest assistant reply. A
// payload that fails to decode is logged and left out of the view.
func (c *ChatService) GetDesignView(conversationID string) (models.DesignView, error) {
	s, err := c.session(conversationID)
	if err != nil {
		return models.DesignView{}, err
	}
	msg, ok := models.LatestDesignMessage(s.Messages())
	if !ok {
		return models.NewDesignView(models.ConversationMessage{})
	}
	view, err := models.NewDesignView(msg)
	if err != nil {
		log.Printf("chat: design view for %s is partial: %v", s.ConversationID(), err)
	}
	return view, nil
}

func (c *ChatService) CancelRequest(conversationID string) error {
	s, err := c.live(conversationID)
	if err != nil {
		return err
	}
	s.CancelRequest()
	return nil
}

func (c *ChatService) ClearMessages(conversationID string) error {
	s, err := c.session(conversationID)
	if err != nil {
		return err
	}
	s.ClearMessages()
	c.persist(s.ConversationID(), s)
	return nil
}

func (c *ChatService) DeleteMessage(conversationID, messageID string) (bool, error) {
	s, err := c.session(conversationID)
	if err != nil {
		return false, err
	}
	ok := s.DeleteMessage(messageID)
	if ok {
		c.persist(s.ConversationID(), s)
	}
	return ok, nil
}

func (c *ChatService) EditMessage(conversationID, messageID, content string) (bool, error) {
	s, err := c.session(conversationID)
	if err != nil {
		return false, err
	}
	ok := s.EditMessage(messageID, content)
	if ok {
		c.persist(s.ConversationID(), s)
	}
	return ok, nil
}

func (c *ChatService) ListConversations(limit, offset int) ([]models.ConversationSummary, error) {
	if c.conversations == nil {
		return []models.ConversationSummary{}, nil
	}
	return c.conversations.List(c.emitter.Context(""), limit, offset)
}

// DeleteConversation drops the live session, cancelling any send, and the
// stored transcript.
func (c *ChatService) DeleteConversation(conversationID string) error {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return chat.ErrSessionNotFound
	}
	c.mu.Lock()
	c.sessions.Remove(id)
	c.mu.Unlock()

	if c.conversations == nil {
		return nil
	}
	return c.conversations.Delete(c.emitter.Context(id), id)
}

// live returns an in-memory session without touching storage.
func (c *ChatService) live(conversationID string) (*chat.Session, error) {
	id := strings.TrimSpace(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions.Get(id); ok {
		return s, nil
	}
	return nil, chat.ErrSessionNotFound
}

// session returns the live session for conversationID, restoring it from
// storage when it is not in memory.
func (c *ChatService) session(conversationID string) (*chat.Session, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, chat.ErrSessionNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions.Get(id); ok {
		return s, nil
	}
	if c.conversations == nil {
		return nil, chat.ErrSessionNotFound
	}

	msgs, found, err := c.conversations.Load(c.emitter.Context(id), id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !found {
		return nil, chat.ErrSessionNotFound
	}
	s := c.newSession(id)
	s.SetMessages(msgs)
	c.sessions.Add(id, s)
	return s, nil
}

func (c *ChatService) newSession(id string) *chat.Session {
	st := c.currentSettings()
	opts := []chat.Option{
		chat.WithConversationID(id),
		chat.WithMaxMessages(st.MaxMessages),
		chat.WithNotifier(c.emitter.Notifier(id)),
		chat.WithOnChange(func(state chat.State) {
			c.emitter.PublishState(id, state)
		}),
	}
	opts = append(opts, c.sessionOpts...)
	return chat.NewSession(c.auth, c.newBackend(st.APIBaseURL), opts...)
}

func (c *ChatService) persist(id string, s *chat.Session) {
	if c.conversations == nil || !c.currentSettings().PersistHistory {
		return
	}
	ctx := c.emitter.Context(id)
	if err := c.conversations.Save(ctx, id, s.Messages()); err != nil {
		log.Printf("chat: saving conversation %s failed: %v", id, err)
		events.Toast(ctx, events.EventWarn, "conversation could not be saved")
	}
}

func (c *ChatService) currentSettings() models.AppSettings {
	out := c.defaults
	if c.settings != nil {
		st, err := c.settings.Get(c.emitter.Context(""))
		if err != nil {
			log.Printf("chat: reading settings failed, using defaults: %v", err)
		} else if st != nil {
			out = *st
		}
	}
	if out.MaxMessages <= 0 {
		out.MaxMessages = chat.DefaultMaxMessages
	}
	if strings.TrimSpace(out.APIBaseURL) == "" {
		out.APIBaseURL = c.defaults.APIBaseURL
	}
	return out
}

func isPrecondition(err error) bool {
	return errors.Is(err, chat.ErrNotSignedIn) ||
		errors.Is(err, chat.ErrEmptyMessage) ||
		errors.Is(err, chat.ErrMessageTooLong) ||
		errors.Is(err, chat.ErrRateLimited)
}
