package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"memory-keeper/internal/domain"
	"memory-keeper/internal/repository"
)

const defaultConversationTitle = "Memory Session"

// WritePolicy decides whether a turn insert is awaited.
type WritePolicy string

const (
	// WriteAcknowledged returns insert failures to the caller and aborts the
	// request.
	WriteAcknowledged WritePolicy = "acknowledged"
	// WriteBestEffort logs insert failures and carries on; the in-memory
	// session stays the source of truth for the running exchange.
	WriteBestEffort WritePolicy = "best_effort"
)

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch p := WritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return WriteAcknowledged, nil
	case WriteAcknowledged, WriteBestEffort:
		return p, nil
	default:
		return "", fmt.Errorf("usecase: unknown write policy %q", s)
	}
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, c domain.Conversation) error
	GetConversation(ctx context.Context, userID, conversationID string) (domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	AppendTurn(ctx context.Context, conversationID string, t domain.Turn) error
	ListTurns(ctx context.Context, conversationID string) ([]domain.Turn, error)
}

type StoryLister interface {
	ListStories(ctx context.Context, userID string) ([]domain.Story, error)
}

type ConversationService struct {
	store   ConversationStore
	stories StoryLister
	policy  WritePolicy

	pending sync.WaitGroup
}

func NewConversationService(store ConversationStore, stories StoryLister, policy WritePolicy) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if stories == nil {
		return nil, errors.New("usecase: story lister must not be nil")
	}
	if policy == "" {
		policy = WriteAcknowledged
	}
	if policy != WriteAcknowledged && policy != WriteBestEffort {
		return nil, fmt.Errorf("usecase: unknown write policy %q", policy)
	}
	return &ConversationService{store: store, stories: stories, policy: policy}, nil
}

// Start creates a conversation owned by userID.
func (s *ConversationService) Start(ctx context.Context, userID string) (domain.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	c := domain.Conversation{
		ID:        newUUID(),
		UserID:    userID,
		Title:     defaultConversationTitle,
		CreatedAt: now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return domain.Conversation{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}
	return c, nil
}

// AppendTurn inserts one turn according to the configured write policy.
// Under WriteBestEffort it never returns a persistence error.
func (s *ConversationService) AppendTurn(ctx context.Context, conversationID string, t domain.Turn) error {
	if strings.TrimSpace(conversationID) == "" {
		return newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	if !t.Role.Valid() {
		return newError(ErrorInvalidInput, "invalid_role", nil)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now().UTC()
	}

	if s.policy == WriteBestEffort {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			if err := s.store.AppendTurn(context.WithoutCancel(ctx), conversationID, t); err != nil {
				slog.Warn("turn write failed", "err", err, "conversation_id", conversationID, "role", t.Role)
			}
		}()
		return nil
	}

	if err := s.store.AppendTurn(ctx, conversationID, t); err != nil {
		return newError(ErrorInternal, "dynamodb_turn_write_error", err)
	}
	return nil
}

// Wait blocks until every best-effort write issued so far has finished.
func (s *ConversationService) Wait() {
	s.pending.Wait()
}

// Turns returns the turns of a conversation owned by userID in insertion
// order.
func (s *ConversationService) Turns(ctx context.Context, userID, conversationID string) ([]domain.Turn, error) {
	if _, err := s.owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_turns_error", err)
	}
	return turns, nil
}

// Session rebuilds the in-memory session for a conversation.
func (s *ConversationService) Session(ctx context.Context, userID, conversationID string) (*Session, error) {
	turns, err := s.Turns(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: userID, ConversationID: conversationID, Turns: turns}, nil
}

// LoadHistory lists the user's saved stories, newest first.
func (s *ConversationService) LoadHistory(ctx context.Context, userID string) ([]domain.Story, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	stories, err := s.stories.ListStories(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_stories_error", err)
	}
	return stories, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_conversations_error", err)
	}
	return convs, nil
}

func (s *ConversationService) owned(ctx context.Context, userID, conversationID string) (domain.Conversation, error) {
	userID = strings.TrimSpace(userID)
	conversationID = strings.TrimSpace(conversationID)
	if userID == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if conversationID == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	c, err := s.store.GetConversation(ctx, userID, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Conversation{}, newError(ErrorNotFound, "conversation_not_found", err)
	}
	if err != nil {
		return domain.Conversation{}, newError(ErrorInternal, "dynamodb_conversation_error", err)
	}
	return c, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
