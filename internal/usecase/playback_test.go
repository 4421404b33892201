package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memory-keeper/internal/integrations/speech"
)

type fakeSynth struct {
	audio     string
	err       error
	calls     int
	lastText  string
	lastVoice string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, voice string) (string, error) {
	f.calls++
	f.lastText = text
	f.lastVoice = voice
	return f.audio, f.err
}

func newPlayback(t *testing.T, synth *fakeSynth) (*PlaybackService, *StoryService) {
	t.Helper()
	stories := newStoryService(t, &mockLLM{}, newStore())
	svc, err := NewPlaybackService(synth, stories)
	require.NoError(t, err)
	return svc, stories
}

func TestPlayback_ExportStory(t *testing.T) {
	pinClock(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC))
	svc, stories := newPlayback(t, &fakeSynth{})
	ctx := context.Background()

	story, err := stories.Save(ctx, "u1", "", "Our Farm", "Cows\nHay")
	require.NoError(t, err)

	doc, err := svc.ExportStory(ctx, "u1", story.ID, "")
	require.NoError(t, err)
	require.Equal(t, "Our_Farm.pdf", doc.Filename)
	require.Contains(t, doc.HTML, "Feb 3, 2025")

	_, err = svc.ExportStory(ctx, "u2", story.ID, "pdf")
	expectError(t, err, ErrorNotFound, "story_not_found")

	_, err = svc.ExportStory(ctx, "u1", story.ID, "rtf")
	expectError(t, err, ErrorInvalidInput, "unknown_format")
}

func TestPlayback_ExportValidation(t *testing.T) {
	svc, _ := newPlayback(t, &fakeSynth{})
	_, err := svc.Export("", "content", "docx")
	expectError(t, err, ErrorInvalidInput, "missing_title_or_content")
}

func TestPlayback_Speak(t *testing.T) {
	synth := &fakeSynth{audio: "bXAz"}
	svc, stories := newPlayback(t, synth)
	ctx := context.Background()

	audio, err := svc.Speak(ctx, "hello", "")
	require.NoError(t, err)
	require.Equal(t, "bXAz", audio)
	require.Empty(t, synth.lastVoice)

	_, err = svc.Speak(ctx, " ", "alloy")
	expectError(t, err, ErrorInvalidInput, "empty_text")
	require.Equal(t, 1, synth.calls)

	story, err := stories.Save(ctx, "u1", "", "t", "narrate me")
	require.NoError(t, err)
	_, err = svc.SpeakStory(ctx, "u1", story.ID, "nova")
	require.NoError(t, err)
	require.Equal(t, "narrate me", synth.lastText)
	require.Equal(t, "nova", synth.lastVoice)
}

func TestPlayback_SpeakUpstreamErrors(t *testing.T) {
	svc, _ := newPlayback(t, &fakeSynth{err: &speech.StatusError{StatusCode: http.StatusPaymentRequired, Err: errors.New("quota")}})
	_, err := svc.Speak(context.Background(), "hello", "")
	expectError(t, err, ErrorPaymentRequired, "speech_payment_required")

	svc, _ = newPlayback(t, &fakeSynth{err: errors.New("dial")})
	_, err = svc.Speak(context.Background(), "hello", "")
	expectError(t, err, ErrorUpstream, "speech_error")
}
