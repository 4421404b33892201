package usecase

import (
	"time"

	"memory-keeper/internal/domain"
)

// Session is the in-memory view of one conversation while it is being
// driven. It is passed explicitly through the chat and story flows and is
// not safe for concurrent use; callers run one generation at a time.
type Session struct {
	UserID         string
	ConversationID string
	Turns          []domain.Turn
}

func (s *Session) append(role domain.Role, content string) domain.Turn {
	t := domain.Turn{Role: role, Content: content, CreatedAt: now().UTC()}
	s.Turns = append(s.Turns, t)
	return t
}

// UpsertAssistant replaces the content of the trailing assistant turn, or
// appends a new assistant turn when the last turn belongs to someone else.
func (s *Session) UpsertAssistant(text string) {
	if n := len(s.Turns); n > 0 && s.Turns[n-1].Role == domain.RoleAssistant {
		s.Turns[n-1].Content = text
		return
	}
	s.append(domain.RoleAssistant, text)
}

// Last returns the trailing turn, if any.
func (s *Session) Last() (domain.Turn, bool) {
	if len(s.Turns) == 0 {
		return domain.Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

var now = time.Now
