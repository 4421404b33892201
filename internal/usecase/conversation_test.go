package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memory-keeper/internal/domain"
)

func newConversationService(t *testing.T, store *failingStore, policy WritePolicy) *ConversationService {
	t.Helper()
	svc, err := NewConversationService(store, store, policy)
	require.NoError(t, err)
	return svc
}

func TestNewConversationService_Validates(t *testing.T) {
	store := newStore()
	_, err := NewConversationService(nil, store, WriteAcknowledged)
	require.Error(t, err)
	_, err = NewConversationService(store, nil, WriteAcknowledged)
	require.Error(t, err)
	_, err = NewConversationService(store, store, "eventually")
	require.Error(t, err)

	svc, err := NewConversationService(store, store, "")
	require.NoError(t, err)
	require.Equal(t, WriteAcknowledged, svc.policy)
}

func TestStart_DefaultTitle(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	pinClock(t, at)
	svc := newConversationService(t, newStore(), WriteAcknowledged)

	conv, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "id-1", conv.ID)
	require.Equal(t, "Memory Session", conv.Title)
	require.Equal(t, at, conv.CreatedAt)

	_, err = svc.Start(context.Background(), " ")
	expectError(t, err, ErrorInvalidInput, "missing_user_id")
}

func TestAppendTurn_AcknowledgedSurfacesFailure(t *testing.T) {
	store := newStore()
	store.turnErr = errors.New("throttled")
	svc := newConversationService(t, store, WriteAcknowledged)

	err := svc.AppendTurn(context.Background(), "c1", domain.Turn{Role: domain.RoleUser, Content: "hi"})
	expectError(t, err, ErrorInternal, "dynamodb_turn_write_error")
}

func TestAppendTurn_BestEffortSwallowsFailure(t *testing.T) {
	store := newStore()
	store.turnErr = errors.New("throttled")
	svc := newConversationService(t, store, WriteBestEffort)

	err := svc.AppendTurn(context.Background(), "c1", domain.Turn{Role: domain.RoleUser, Content: "hi"})
	require.NoError(t, err)
	svc.Wait()
}

func TestAppendTurn_BestEffortStillWrites(t *testing.T) {
	store := newStore()
	svc := newConversationService(t, store, WriteBestEffort)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, svc.AppendTurn(ctx, "c1", domain.Turn{Role: domain.RoleUser, Content: "hi"}))
	cancel()
	svc.Wait()

	got, err := store.ListTurns(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].CreatedAt.IsZero())
}

func TestAppendTurn_Validation(t *testing.T) {
	svc := newConversationService(t, newStore(), WriteAcknowledged)
	err := svc.AppendTurn(context.Background(), "", domain.Turn{Role: domain.RoleUser})
	expectError(t, err, ErrorInvalidInput, "missing_conversation_id")

	err = svc.AppendTurn(context.Background(), "c1", domain.Turn{Role: domain.RoleSystem})
	expectError(t, err, ErrorInvalidInput, "invalid_role")
}

func TestTurnsAndSession_OwnerChecked(t *testing.T) {
	store := newStore()
	svc := newConversationService(t, store, WriteAcknowledged)
	ctx := context.Background()

	conv, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.AppendTurn(ctx, conv.ID, domain.Turn{Role: domain.RoleAssistant, Content: "Tell me about your childhood."}))
	require.NoError(t, svc.AppendTurn(ctx, conv.ID, domain.Turn{Role: domain.RoleUser, Content: "We lived by the sea."}))

	sess, err := svc.Session(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Equal(t, "u1", sess.UserID)
	require.Len(t, sess.Turns, 2)
	require.Equal(t, domain.RoleAssistant, sess.Turns[0].Role)

	_, err = svc.Turns(ctx, "u2", conv.ID)
	expectError(t, err, ErrorNotFound, "conversation_not_found")

	_, err = svc.Turns(ctx, "u1", "")
	expectError(t, err, ErrorInvalidInput, "missing_conversation_id")
}

func TestLoadHistory_NewestFirst(t *testing.T) {
	store := newStore()
	svc := newConversationService(t, store, WriteAcknowledged)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateStory(ctx, domain.Story{ID: "old", UserID: "u1", CreatedAt: base}))
	require.NoError(t, store.CreateStory(ctx, domain.Story{ID: "new", UserID: "u1", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.CreateStory(ctx, domain.Story{ID: "foreign", UserID: "u2", CreatedAt: base.Add(2 * time.Hour)}))

	stories, err := svc.LoadHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stories, 2)
	require.Equal(t, "new", stories[0].ID)
	require.Equal(t, "old", stories[1].ID)

	store.listErr = errors.New("down")
	_, err = svc.LoadHistory(ctx, "u1")
	expectError(t, err, ErrorInternal, "dynamodb_stories_error")
}

func TestListConversations(t *testing.T) {
	store := newStore()
	svc := newConversationService(t, store, WriteAcknowledged)
	ctx := context.Background()

	_, err := svc.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.Start(ctx, "u2")
	require.NoError(t, err)

	convs, err := svc.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "u1", convs[0].UserID)
}
