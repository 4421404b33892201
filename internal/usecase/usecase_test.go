package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memory-keeper/internal/domain"
	"memory-keeper/internal/integrations/openai"
	"memory-keeper/internal/repository"
)

type mockLLM struct {
	mu        sync.Mutex
	answer    string
	stream    string
	err       error
	calls     int
	lastReq   domain.ChatRequest
	streamReq []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, in domain.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastReq = in
	return m.answer, m.err
}

func (m *mockLLM) ChatStream(_ context.Context, in domain.ChatRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastReq = in
	m.streamReq = append(m.streamReq, in)
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(strings.NewReader(m.stream)), nil
}

// failingStore wraps the in-memory store and fails selected writes.
type failingStore struct {
	*repository.Memory
	turnErr       error
	storyErr      error
	transcriptErr error
	blogErr       error
	listErr       error
}

func (f *failingStore) AppendTurn(ctx context.Context, conversationID string, t domain.Turn) error {
	if f.turnErr != nil {
		return f.turnErr
	}
	return f.Memory.AppendTurn(ctx, conversationID, t)
}

func (f *failingStore) CreateStory(ctx context.Context, s domain.Story) error {
	if f.storyErr != nil {
		return f.storyErr
	}
	return f.Memory.CreateStory(ctx, s)
}

func (f *failingStore) CreateTranscript(ctx context.Context, t domain.Transcript) error {
	if f.transcriptErr != nil {
		return f.transcriptErr
	}
	return f.Memory.CreateTranscript(ctx, t)
}

func (f *failingStore) CreateBlog(ctx context.Context, b domain.Blog) error {
	if f.blogErr != nil {
		return f.blogErr
	}
	return f.Memory.CreateBlog(ctx, b)
}

func (f *failingStore) ListStories(ctx context.Context, userID string) ([]domain.Story, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Memory.ListStories(ctx, userID)
}

func newStore() *failingStore {
	return &failingStore{Memory: repository.NewMemory()}
}

func sseStream(deltas ...string) string {
	var sb strings.Builder
	for _, d := range deltas {
		sb.WriteString(`data: {"choices":[{"delta":{"content":"` + d + `"}}]}` + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func pinClock(t *testing.T, at time.Time) {
	t.Helper()
	prevNow, prevUUID := now, newUUID
	n := 0
	now = func() time.Time { return at }
	newUUID = func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
	t.Cleanup(func() {
		now, newUUID = prevNow, prevUUID
	})
}

func turns(pairs ...string) []domain.Turn {
	out := make([]domain.Turn, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.Turn{Role: domain.Role(pairs[i]), Content: pairs[i+1]})
	}
	return out
}

func TestUpstreamError_Classification(t *testing.T) {
	tests := []struct {
		status int
		code   ErrorCode
		reason string
	}{
		{status: http.StatusTooManyRequests, code: ErrorRateLimited, reason: "openai_rate_limited"},
		{status: http.StatusPaymentRequired, code: ErrorPaymentRequired, reason: "openai_payment_required"},
		{status: http.StatusInternalServerError, code: ErrorUpstream, reason: "openai_error"},
		{status: http.StatusBadRequest, code: ErrorUpstream, reason: "openai_error"},
	}
	for _, tt := range tests {
		err := UpstreamError("openai", &openai.HTTPStatusError{StatusCode: tt.status})
		require.Equal(t, tt.code, err.Code)
		require.Equal(t, tt.reason, err.Reason)
	}

	err := UpstreamError("speech", errors.New("dial tcp: refused"))
	require.Equal(t, ErrorUpstream, err.Code)
	require.Equal(t, "speech_error", err.Reason)
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, ErrorNotFound, CodeOf(newError(ErrorNotFound, "x", nil)))
	require.Equal(t, ErrorInternal, CodeOf(errors.New("plain")))
}

func TestInvalidInputMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: newError(ErrorInvalidInput, "empty_transcript", nil), want: "Transcript is required"},
		{err: newError(ErrorInvalidInput, "empty_title", nil), want: "Title is required"},
		{err: newError(ErrorInvalidInput, "insufficient_turns", nil), want: "Please share more memories before generating a story"},
		{err: newError(ErrorInvalidInput, "something_new", nil), want: "Invalid request"},
		{err: errors.New("plain"), want: "Invalid request"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, InvalidInputMessage(tt.err))
	}
}

func TestParseWritePolicy(t *testing.T) {
	p, err := ParseWritePolicy("")
	require.NoError(t, err)
	require.Equal(t, WriteAcknowledged, p)

	p, err = ParseWritePolicy(" BEST_EFFORT ")
	require.NoError(t, err)
	require.Equal(t, WriteBestEffort, p)

	_, err = ParseWritePolicy("sometimes")
	require.Error(t, err)
}

func TestSession_UpsertAssistant(t *testing.T) {
	s := &Session{Turns: turns("user", "hi")}
	s.UpsertAssistant("Hel")
	s.UpsertAssistant("Hello")
	require.Len(t, s.Turns, 2)
	require.Equal(t, domain.RoleAssistant, s.Turns[1].Role)
	require.Equal(t, "Hello", s.Turns[1].Content)

	s.append(domain.RoleUser, "next")
	s.UpsertAssistant("again")
	require.Len(t, s.Turns, 4)
	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "again", last.Content)

	_, ok = (&Session{}).Last()
	require.False(t, ok)
}

func TestBuildStorySource_UserTurnsOnly(t *testing.T) {
	got := buildStorySource(turns("user", "A", "assistant", "B", "user", "C", "assistant", "D"))
	require.Equal(t, "A\n\nC", got)
}

func TestSummarize_Runes(t *testing.T) {
	require.Equal(t, "abc", summarize("abc", 100))
	long := strings.Repeat("é", 150)
	require.Equal(t, strings.Repeat("é", 100), summarize(long, 100))
}
