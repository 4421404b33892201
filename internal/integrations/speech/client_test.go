package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	key  string
	err  error
	base string
}

func (f *fakeKeys) APIKey(context.Context) (string, error) {
	return f.key, f.err
}

func (f *fakeKeys) BaseURL() string {
	return f.base
}

type speechBody struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func TestNewClient_RequiresKeySource(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
}

func TestSynthesize_HappyPath(t *testing.T) {
	var got speechBody
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	c, err := NewClient(&fakeKeys{key: "sk-test", base: srv.URL + "/v1"})
	require.NoError(t, err)

	audio, err := c.Synthesize(context.Background(), "Once upon a time", "")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(audio)
	require.NoError(t, err)
	require.Equal(t, "ID3-fake-mp3", string(raw))
	require.Equal(t, "Bearer sk-test", auth)
	require.Equal(t, "tts-1", got.Model)
	require.Equal(t, "alloy", got.Voice)
	require.Equal(t, "mp3", got.ResponseFormat)
	require.Equal(t, "Once upon a time", got.Input)
}

func TestSynthesize_CustomVoiceAndModel(t *testing.T) {
	var got speechBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	c, err := NewClient(&fakeKeys{key: "k", base: srv.URL + "/v1"}, WithModel("tts-1-hd"), WithDefaultVoice("nova"))
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, "tts-1-hd", got.Model)
	require.Equal(t, "nova", got.Voice)

	_, err = c.Synthesize(context.Background(), "hello", "echo")
	require.NoError(t, err)
	require.Equal(t, "echo", got.Voice)
}

func TestSynthesize_EmptyText(t *testing.T) {
	c, err := NewClient(&fakeKeys{key: "k"})
	require.NoError(t, err)
	_, err = c.Synthesize(context.Background(), "  ", "alloy")
	require.Error(t, err)
}

func TestSynthesize_KeyError(t *testing.T) {
	c, err := NewClient(&fakeKeys{err: errors.New("ssm down")})
	require.NoError(t, err)
	_, err = c.Synthesize(context.Background(), "hello", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "resolve api key")
}

func TestSynthesize_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "api error body", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`},
		{name: "payment", status: http.StatusPaymentRequired, body: `{"error":{"message":"add funds"}}`},
		{name: "plain body", status: http.StatusInternalServerError, body: "upstream exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(&fakeKeys{key: "k", base: srv.URL + "/v1"})
			require.NoError(t, err)

			_, err = c.Synthesize(context.Background(), "hello", "")
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, tt.status, statusErr.HTTPStatusCode())
		})
	}
}

func TestSynthesize_AudioOverLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c, err := NewClient(&fakeKeys{key: "sk-test", base: srv.URL + "/v1"})
	require.NoError(t, err)

	c.maxAudio = 10
	audio, err := c.Synthesize(context.Background(), "Once upon a time", "")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(audio)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(raw))

	c.maxAudio = 9
	_, err = c.Synthesize(context.Background(), "Once upon a time", "")
	require.ErrorContains(t, err, "exceeds 9 bytes")
}
