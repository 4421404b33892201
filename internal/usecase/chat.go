package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"memory-keeper/internal/domain"
	"memory-keeper/internal/stream"
)

// LLMClient is the completion API as the flows in this package use it.
type LLMClient interface {
	Chat(ctx context.Context, in domain.ChatRequest) (string, error)
	ChatStream(ctx context.Context, in domain.ChatRequest) (io.ReadCloser, error)
}

// EmitFunc receives each assistant delta as it is decoded. Returning an
// error stops the generation.
type EmitFunc func(delta string) error

// ErrEmit wraps an error returned by an EmitFunc so callers can tell a gone
// client from an upstream failure.
var ErrEmit = errors.New("usecase: emit failed")

type ChatService struct {
	llm       LLMClient
	convs     *ConversationService
	model     string
	maxTokens int
}

func NewChatService(llm LLMClient, convs *ConversationService, model string, maxTokens int) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if convs == nil {
		return nil, errors.New("usecase: conversation service must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: chat model must not be empty")
	}
	return &ChatService{llm: llm, convs: convs, model: model, maxTokens: maxTokens}, nil
}

// Reply records the user's turn, streams the assistant's answer through
// emit and persists the finished answer.
func (s *ChatService) Reply(ctx context.Context, sess *Session, content string, emit EmitFunc) (domain.Turn, error) {
	if sess == nil {
		return domain.Turn{}, newError(ErrorInvalidInput, "missing_session", nil)
	}
	if strings.TrimSpace(content) == "" {
		return domain.Turn{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	userTurn := sess.append(domain.RoleUser, content)
	if err := s.convs.AppendTurn(ctx, sess.ConversationID, userTurn); err != nil {
		return domain.Turn{}, err
	}
	return s.generate(ctx, sess, emit)
}

// Greet streams the opening question of a conversation that has no turns
// yet.
func (s *ChatService) Greet(ctx context.Context, sess *Session, emit EmitFunc) (domain.Turn, error) {
	if sess == nil {
		return domain.Turn{}, newError(ErrorInvalidInput, "missing_session", nil)
	}
	if len(sess.Turns) > 0 {
		return domain.Turn{}, newError(ErrorInvalidInput, "conversation_already_started", nil)
	}
	return s.generate(ctx, sess, emit)
}

func (s *ChatService) generate(ctx context.Context, sess *Session, emit EmitFunc) (domain.Turn, error) {
	body, err := s.llm.ChatStream(ctx, domain.ChatRequest{
		Model:     s.model,
		Messages:  buildInterviewMessages(sess.Turns),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return domain.Turn{}, UpstreamError("openai", err)
	}
	defer func() { _ = body.Close() }()

	dec := stream.NewDecoder(body)
	var sb strings.Builder
	text, err := stream.Collect(dec, func(delta string) error {
		sb.WriteString(delta)
		sess.UpsertAssistant(sb.String())
		if emit == nil {
			return nil
		}
		if emitErr := emit(delta); emitErr != nil {
			return fmt.Errorf("%w: %w", ErrEmit, emitErr)
		}
		return nil
	})
	if dropped := dec.Dropped(); dropped > 0 {
		slog.Warn("dropped malformed stream events", "conversation_id", sess.ConversationID, "dropped", dropped)
	}
	if err != nil {
		if errors.Is(err, ErrEmit) {
			return domain.Turn{}, newError(ErrorInternal, "client_gone", err)
		}
		return domain.Turn{}, newError(ErrorUpstream, "openai_stream_error", err)
	}
	if text == "" {
		return domain.Turn{}, nil
	}

	assistant, _ := sess.Last()
	if err := s.convs.AppendTurn(ctx, sess.ConversationID, assistant); err != nil {
		return assistant, err
	}
	return assistant, nil
}
