package usecase

import (
	"context"
	"errors"
	"strings"

	"memory-keeper/internal/domain"
)

const (
	blogTitle      = "Life Memory"
	blogSummaryLen = 100
)

type BlogStore interface {
	CreateTranscript(ctx context.Context, t domain.Transcript) error
	CreateBlog(ctx context.Context, b domain.Blog) error
	ListBlogs(ctx context.Context, userID string) ([]domain.Blog, error)
}

type BlogService struct {
	llm       LLMClient
	store     BlogStore
	model     string
	maxTokens int
}

type BlogOutput struct {
	Transcript domain.Transcript `json:"transcript"`
	Blog       domain.Blog       `json:"blog"`
}

func NewBlogService(llm LLMClient, store BlogStore, model string, maxTokens int) (*BlogService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: blog store must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: blog model must not be empty")
	}
	return &BlogService{llm: llm, store: store, model: model, maxTokens: maxTokens}, nil
}

// GenerateBlog formats a transcript into a blog entry, then saves the
// transcript and the blog as two separate writes. A failure on the second
// write leaves the transcript behind.
func (s *BlogService) GenerateBlog(ctx context.Context, userID, transcript string) (BlogOutput, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return BlogOutput{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if strings.TrimSpace(transcript) == "" {
		return BlogOutput{}, newError(ErrorInvalidInput, "empty_transcript", nil)
	}

	content, err := s.llm.Chat(ctx, domain.ChatRequest{
		Model:     s.model,
		Messages:  buildBlogMessages(transcript),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return BlogOutput{}, UpstreamError("openai", err)
	}

	tr := domain.Transcript{
		ID:        newUUID(),
		UserID:    userID,
		Content:   transcript,
		CreatedAt: now().UTC(),
	}
	if err := s.store.CreateTranscript(ctx, tr); err != nil {
		return BlogOutput{}, newError(ErrorInternal, "dynamodb_transcript_write_error", err)
	}

	blog := domain.Blog{
		ID:          newUUID(),
		UserID:      userID,
		Title:       blogTitle,
		Summary:     summarize(content, blogSummaryLen),
		ContentHTML: content,
		CreatedAt:   now().UTC(),
	}
	if err := s.store.CreateBlog(ctx, blog); err != nil {
		return BlogOutput{}, newError(ErrorInternal, "dynamodb_blog_write_error", err)
	}
	return BlogOutput{Transcript: tr, Blog: blog}, nil
}

// ListBlogs returns the user's blogs, newest first.
func (s *BlogService) ListBlogs(ctx context.Context, userID string) ([]domain.Blog, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	blogs, err := s.store.ListBlogs(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_list_error", err)
	}
	return blogs, nil
}
