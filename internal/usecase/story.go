package usecase

import (
	"context"
	"errors"
	"strings"

	"memory-keeper/internal/domain"
	"memory-keeper/internal/repository"
)

const (
	minStoryTurns   = 4
	storyTitleDate  = "Jan 2, 2006"
	storyTitleLabel = "Memory from "
)

type StoryStore interface {
	CreateStory(ctx context.Context, s domain.Story) error
	GetStory(ctx context.Context, userID, storyID string) (domain.Story, error)
	UpdateStory(ctx context.Context, userID, storyID, title, content string) (domain.Story, error)
	DeleteStory(ctx context.Context, userID, storyID string) error
	ListStories(ctx context.Context, userID string) ([]domain.Story, error)
}

type StoryService struct {
	llm   LLMClient
	store StoryStore
	model string
}

func NewStoryService(llm LLMClient, store StoryStore, model string) (*StoryService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: story store must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: story model must not be empty")
	}
	return &StoryService{llm: llm, store: store, model: model}, nil
}

// Generate turns the user side of a conversation into a narrative. It makes
// no external call unless at least four turns and one non-blank user turn
// are present.
func (s *StoryService) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	if len(turns) < minStoryTurns {
		return "", newError(ErrorInvalidInput, "insufficient_turns", nil)
	}
	if !hasUserContent(turns) {
		return "", newError(ErrorInvalidInput, "no_user_turns", nil)
	}
	story, err := s.llm.Chat(ctx, domain.ChatRequest{
		Model:    s.model,
		Messages: buildStoryMessages(turns),
	})
	if err != nil {
		return "", UpstreamError("openai", err)
	}
	return story, nil
}

// Finalize generates a story from the session and saves it linked to the
// session's conversation.
func (s *StoryService) Finalize(ctx context.Context, sess *Session) (domain.Story, error) {
	if sess == nil {
		return domain.Story{}, newError(ErrorInvalidInput, "missing_session", nil)
	}
	content, err := s.Generate(ctx, sess.Turns)
	if err != nil {
		return domain.Story{}, err
	}
	return s.Save(ctx, sess.UserID, sess.ConversationID, "", content)
}

// Save stores a story. An empty title becomes "Memory from <date>".
func (s *StoryService) Save(ctx context.Context, userID, conversationID, title, content string) (domain.Story, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Story{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if strings.TrimSpace(content) == "" {
		return domain.Story{}, newError(ErrorInvalidInput, "empty_content", nil)
	}
	created := now().UTC()
	title = strings.TrimSpace(title)
	if title == "" {
		title = storyTitleLabel + created.Format(storyTitleDate)
	}
	story := domain.Story{
		ID:             newUUID(),
		UserID:         userID,
		ConversationID: strings.TrimSpace(conversationID),
		Title:          title,
		Content:        content,
		CreatedAt:      created,
	}
	if err := s.store.CreateStory(ctx, story); err != nil {
		return domain.Story{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}
	return story, nil
}

func (s *StoryService) Update(ctx context.Context, userID, storyID, title, content string) (domain.Story, error) {
	if err := requireIDs(userID, storyID); err != nil {
		return domain.Story{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Story{}, newError(ErrorInvalidInput, "empty_title", nil)
	}
	if strings.TrimSpace(content) == "" {
		return domain.Story{}, newError(ErrorInvalidInput, "empty_content", nil)
	}
	story, err := s.store.UpdateStory(ctx, userID, storyID, title, content)
	if err != nil {
		return domain.Story{}, storeError("update", err)
	}
	return story, nil
}

func (s *StoryService) Delete(ctx context.Context, userID, storyID string) error {
	if err := requireIDs(userID, storyID); err != nil {
		return err
	}
	if err := s.store.DeleteStory(ctx, userID, storyID); err != nil {
		return storeError("delete", err)
	}
	return nil
}

func (s *StoryService) Get(ctx context.Context, userID, storyID string) (domain.Story, error) {
	if err := requireIDs(userID, storyID); err != nil {
		return domain.Story{}, err
	}
	story, err := s.store.GetStory(ctx, userID, storyID)
	if err != nil {
		return domain.Story{}, storeError("get", err)
	}
	return story, nil
}

// List returns the user's stories, newest first.
func (s *StoryService) List(ctx context.Context, userID string) ([]domain.Story, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	stories, err := s.store.ListStories(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_list_error", err)
	}
	return stories, nil
}

func requireIDs(userID, storyID string) error {
	if strings.TrimSpace(userID) == "" {
		return newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if strings.TrimSpace(storyID) == "" {
		return newError(ErrorInvalidInput, "missing_story_id", nil)
	}
	return nil
}

func storeError(op string, err error) *Error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrorNotFound, "story_not_found", err)
	}
	return newError(ErrorInternal, "dynamodb_"+op+"_error", err)
}
