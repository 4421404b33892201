// Package speech synthesizes narration audio through the OpenAI speech
// endpoint.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
)

const (
	DefaultVoice = "alloy"
	DefaultModel = "tts-1"

	maxAudioBytes = 25 << 20
)

// KeySource supplies the API token and root URL. *openai.Client satisfies it
// so both clients share one lazily fetched key.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
	BaseURL() string
}

// StatusError reports a non-2xx answer from the speech endpoint.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech: upstream status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	keys         KeySource
	model        string
	defaultVoice string
	httpClient   *http.Client
	maxAudio     int64
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithDefaultVoice(voice string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(voice); v != "" {
			c.defaultVoice = v
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("speech: key source must not be nil")
	}
	c := &Client{
		keys:         keys,
		model:        DefaultModel,
		defaultVoice: DefaultVoice,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		maxAudio:     maxAudioBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize returns base64 encoded mp3 audio for text. An empty voice uses
// the configured default.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("speech: text must not be empty")
	}
	voice = strings.TrimSpace(voice)
	if voice == "" {
		voice = c.defaultVoice
	}

	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("speech: resolve api key: %w", err)
	}
	cfg := openaigo.DefaultConfig(key)
	if base := strings.TrimSpace(c.keys.BaseURL()); base != "" {
		cfg.BaseURL = base
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	client := openaigo.NewClientWithConfig(cfg)

	res, err := client.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(c.model),
		Input:          text,
		Voice:          openaigo.SpeechVoice(voice),
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
	})
	if err != nil {
		return "", fmt.Errorf("speech: create speech: %w", classify(err))
	}
	defer func() { _ = res.Close() }()

	audio, err := io.ReadAll(io.LimitReader(res, c.maxAudio+1))
	if err != nil {
		return "", fmt.Errorf("speech: read audio: %w", err)
	}
	if int64(len(audio)) > c.maxAudio {
		return "", fmt.Errorf("speech: audio exceeds %d bytes", c.maxAudio)
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

// classify lifts the status code out of the SDK's error types.
func classify(err error) error {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
