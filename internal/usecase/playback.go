package usecase

import (
	"context"
	"errors"
	"strings"

	"memory-keeper/internal/export"
)

// Synthesizer turns text into base64 encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// PlaybackService exports and narrates saved stories.
type PlaybackService struct {
	speech  Synthesizer
	stories *StoryService
}

func NewPlaybackService(speech Synthesizer, stories *StoryService) (*PlaybackService, error) {
	if speech == nil {
		return nil, errors.New("usecase: synthesizer must not be nil")
	}
	if stories == nil {
		return nil, errors.New("usecase: story service must not be nil")
	}
	return &PlaybackService{speech: speech, stories: stories}, nil
}

// Export renders title and content in the requested format.
func (s *PlaybackService) Export(title, content, format string) (export.Document, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return export.Document{}, newError(ErrorInvalidInput, "unknown_format", err)
	}
	doc, err := export.Render(title, content, f, now())
	if errors.Is(err, export.ErrInvalid) {
		return export.Document{}, newError(ErrorInvalidInput, "missing_title_or_content", err)
	}
	if err != nil {
		return export.Document{}, newError(ErrorInternal, "export_render_error", err)
	}
	return doc, nil
}

// ExportStory renders one of the user's saved stories.
func (s *PlaybackService) ExportStory(ctx context.Context, userID, storyID, format string) (export.Document, error) {
	story, err := s.stories.Get(ctx, userID, storyID)
	if err != nil {
		return export.Document{}, err
	}
	return s.Export(story.Title, story.Content, format)
}

// Speak narrates text. An empty voice uses the synthesizer's default.
func (s *PlaybackService) Speak(ctx context.Context, text, voice string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", newError(ErrorInvalidInput, "empty_text", nil)
	}
	audio, err := s.speech.Synthesize(ctx, text, voice)
	if err != nil {
		return "", UpstreamError("speech", err)
	}
	return audio, nil
}

// SpeakStory narrates one of the user's saved stories.
func (s *PlaybackService) SpeakStory(ctx context.Context, userID, storyID, voice string) (string, error) {
	story, err := s.stories.Get(ctx, userID, storyID)
	if err != nil {
		return "", err
	}
	return s.Speak(ctx, story.Content, voice)
}
