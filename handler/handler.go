// Package handler serves the serverless function surface behind an API
// Gateway proxy integration.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"memory-keeper/internal/domain"
	"memory-keeper/internal/export"
	"memory-keeper/internal/usecase"
)

const (
	routeGenerateStory = "generate-story"
	routeExport        = "export-pdf"
	routeSpeech        = "text-to-speech"

	headerCorrelationID = "X-Correlation-Id"
	allowHeaders        = "authorization, x-client-info, apikey, content-type"
)

// StoryGenerator turns conversation turns into a narrative.
type StoryGenerator interface {
	Generate(ctx context.Context, turns []domain.Turn) (string, error)
}

// Playback exports and narrates text.
type Playback interface {
	Export(title, content, format string) (export.Document, error)
	Speak(ctx context.Context, text, voice string) (string, error)
}

type Handler struct {
	stories  StoryGenerator
	playback Playback
}

type generateStoryRequest struct {
	Messages []domain.Turn `json:"messages"`
}

type generateStoryResponse struct {
	Story string `json:"story"`
}

type exportRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Format  string `json:"format"`
}

type exportResponse struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	HTML     string `json:"html,omitempty"`
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type speechResponse struct {
	AudioContent string `json:"audioContent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(stories StoryGenerator, playback Playback) (*Handler, error) {
	if stories == nil {
		return nil, errors.New("handler: story generator must not be nil")
	}
	if playback == nil {
		return nil, errors.New("handler: playback must not be nil")
	}
	return &Handler{stories: stories, playback: playback}, nil
}

// Handle routes the event by the last segment of its path.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlation_id", correlationID)

	if event.HTTPMethod == http.MethodOptions {
		return textResponse(http.StatusOK, "ok", correlationID), nil
	}

	route := lastSegment(event.Path)
	switch route {
	case routeGenerateStory, routeExport, routeSpeech:
	default:
		return jsonResponse(http.StatusNotFound, errorResponse{Error: "Not found"}, correlationID), nil
	}
	if event.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"}, correlationID), nil
	}

	body := event.Body
	if event.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, errorResponse{Error: "Invalid request body"}, correlationID), nil
		}
		body = string(raw)
	}

	var (
		status int
		out    any
		err    error
	)
	switch route {
	case routeGenerateStory:
		status, out, err = h.generateStory(ctx, body)
	case routeExport:
		status, out, err = h.export(body)
	case routeSpeech:
		status, out, err = h.speech(ctx, body)
	}
	if err != nil {
		code, msg := mapError(err)
		logAttrs := []any{"route", route, "status", code, "err", err}
		var ue *usecase.Error
		if errors.As(err, &ue) {
			logAttrs = append(logAttrs, "reason", ue.Reason)
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", logAttrs...)
		} else {
			logger.Warn("request rejected", logAttrs...)
		}
		return jsonResponse(code, errorResponse{Error: msg}, correlationID), nil
	}
	return jsonResponse(status, out, correlationID), nil
}

func (h *Handler) generateStory(ctx context.Context, body string) (int, any, error) {
	var req generateStoryRequest
	if err := decodeBody(body, &req); err != nil {
		return 0, nil, err
	}
	story, err := h.stories.Generate(ctx, req.Messages)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, generateStoryResponse{Story: story}, nil
}

func (h *Handler) export(body string) (int, any, error) {
	var req exportRequest
	if err := decodeBody(body, &req); err != nil {
		return 0, nil, err
	}
	doc, err := h.playback.Export(req.Title, req.Content, req.Format)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, exportResponse{
		Content:  base64.StdEncoding.EncodeToString(doc.Content),
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		HTML:     doc.HTML,
	}, nil
}

func (h *Handler) speech(ctx context.Context, body string) (int, any, error) {
	var req speechRequest
	if err := decodeBody(body, &req); err != nil {
		return 0, nil, err
	}
	audio, err := h.playback.Speak(ctx, req.Text, req.Voice)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, speechResponse{AudioContent: audio}, nil
}

func decodeBody(body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
	}
	return nil
}

// mapError returns the status and user-facing message for err.
func mapError(err error) (int, string) {
	switch usecase.CodeOf(err) {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, usecase.InvalidInputMessage(err)
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, "Rate limits exceeded, please try again later."
	case usecase.ErrorPaymentRequired:
		return http.StatusPaymentRequired, "Payment required, please add funds to your workspace."
	case usecase.ErrorNotFound:
		return http.StatusNotFound, "Not found"
	case usecase.ErrorUpstream:
		return http.StatusInternalServerError, "AI gateway error"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func baseHeaders(correlationID, contentType string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": allowHeaders,
		"Content-Type":                 contentType,
		headerCorrelationID:            correlationID,
	}
}

func textResponse(status int, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    baseHeaders(correlationID, "text/plain; charset=utf-8"),
		Body:       body,
	}
}

func jsonResponse(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    baseHeaders(correlationID, "application/json"),
		Body:       string(body),
	}
}
