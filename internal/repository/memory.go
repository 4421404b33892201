package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"memory-keeper/internal/domain"
)

// Memory is an in-process store with the same ownership and ordering rules
// as Client. It backs local runs and tests.
type Memory struct {
	mu          sync.RWMutex
	convs       map[string]domain.Conversation
	turns       map[string][]domain.Turn
	stories     map[string]domain.Story
	transcripts map[string]domain.Transcript
	blogs       map[string]domain.Blog
	order       map[string]uint64
	seq         uint64
}

func NewMemory() *Memory {
	return &Memory{
		convs:       make(map[string]domain.Conversation),
		turns:       make(map[string][]domain.Turn),
		stories:     make(map[string]domain.Story),
		transcripts: make(map[string]domain.Transcript),
		blogs:       make(map[string]domain.Blog),
		order:       make(map[string]uint64),
	}
}

// track records insertion order so equal timestamps still list newest
// first. Callers hold m.mu.
func (m *Memory) track(key string) error {
	if _, ok := m.order[key]; ok {
		return fmt.Errorf("repository: duplicate key %s", key)
	}
	m.seq++
	m.order[key] = m.seq
	return nil
}

func (m *Memory) newer(ka string, ta time.Time, kb string, tb time.Time) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return m.order[ka] > m.order[kb]
}

func (m *Memory) CreateConversation(_ context.Context, c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(convPK(c.ID)); err != nil {
		return fmt.Errorf("repository: CreateConversation: %w", err)
	}
	m.convs[c.ID] = c
	return nil
}

func (m *Memory) GetConversation(_ context.Context, userID, conversationID string) (domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[conversationID]
	if !ok || c.UserID != userID {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation: %w", ErrNotFound)
	}
	return c, nil
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Conversation, 0)
	for _, c := range m.convs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.newer(convPK(out[i].ID), out[i].CreatedAt, convPK(out[j].ID), out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) AppendTurn(_ context.Context, conversationID string, t domain.Turn) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: AppendTurn: conversation id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep CreatedAt order, later arrivals last among equal timestamps,
	// matching the TURN#<nanos>#<seq> sort key.
	turns := m.turns[conversationID]
	i := sort.Search(len(turns), func(i int) bool {
		return turns[i].CreatedAt.After(t.CreatedAt)
	})
	turns = append(turns, domain.Turn{})
	copy(turns[i+1:], turns[i:])
	turns[i] = t
	m.turns[conversationID] = turns
	return nil
}

func (m *Memory) ListTurns(_ context.Context, conversationID string) ([]domain.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.turns[conversationID]
	out := make([]domain.Turn, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) CreateStory(_ context.Context, s domain.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(storyPK(s.ID)); err != nil {
		return fmt.Errorf("repository: CreateStory: %w", err)
	}
	m.stories[s.ID] = s
	return nil
}

func (m *Memory) GetStory(_ context.Context, userID, storyID string) (domain.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stories[storyID]
	if !ok || s.UserID != userID {
		return domain.Story{}, fmt.Errorf("repository: GetStory: %w", ErrNotFound)
	}
	return s, nil
}

func (m *Memory) UpdateStory(_ context.Context, userID, storyID, title, content string) (domain.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[storyID]
	if !ok || s.UserID != userID {
		return domain.Story{}, fmt.Errorf("repository: UpdateStory: %w", ErrNotFound)
	}
	s.Title = title
	s.Content = content
	m.stories[storyID] = s
	return s, nil
}

func (m *Memory) DeleteStory(_ context.Context, userID, storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[storyID]
	if !ok || s.UserID != userID {
		return fmt.Errorf("repository: DeleteStory: %w", ErrNotFound)
	}
	delete(m.stories, storyID)
	return nil
}

func (m *Memory) ListStories(_ context.Context, userID string) ([]domain.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Story, 0)
	for _, s := range m.stories {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.newer(storyPK(out[i].ID), out[i].CreatedAt, storyPK(out[j].ID), out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CreateTranscript(_ context.Context, t domain.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(transcriptPK(t.ID)); err != nil {
		return fmt.Errorf("repository: CreateTranscript: %w", err)
	}
	m.transcripts[t.ID] = t
	return nil
}

func (m *Memory) CreateBlog(_ context.Context, b domain.Blog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(blogPK(b.ID)); err != nil {
		return fmt.Errorf("repository: CreateBlog: %w", err)
	}
	m.blogs[b.ID] = b
	return nil
}

func (m *Memory) ListBlogs(_ context.Context, userID string) ([]domain.Blog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Blog, 0)
	for _, b := range m.blogs {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.newer(blogPK(out[i].ID), out[i].CreatedAt, blogPK(out[j].ID), out[j].CreatedAt)
	})
	return out, nil
}
