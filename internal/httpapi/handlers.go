package httpapi

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"memory-keeper/internal/stream"
	"memory-keeper/internal/usecase"
)

// Handler wires HTTP routes to the usecase services.
type Handler struct {
	convs    *usecase.ConversationService
	chat     *usecase.ChatService
	stories  *usecase.StoryService
	blogs    *usecase.BlogService
	playback *usecase.PlaybackService
}

func NewHandler(convs *usecase.ConversationService, chat *usecase.ChatService, stories *usecase.StoryService, blogs *usecase.BlogService, playback *usecase.PlaybackService) (*Handler, error) {
	if convs == nil || chat == nil || stories == nil || blogs == nil || playback == nil {
		return nil, errors.New("httpapi: all services are required")
	}
	return &Handler{convs: convs, chat: chat, stories: stories, blogs: blogs, playback: playback}, nil
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/generate-blog", h.generateBlog)
	router.GET("/blogs/:userId", h.listBlogs)

	router.POST("/conversations", h.startConversation)
	router.GET("/conversations/:userId", h.listConversations)
	router.GET("/conversations/:userId/:conversationId/turns", h.listTurns)
	router.POST("/conversations/:userId/:conversationId/greeting", h.greet)
	router.POST("/conversations/:userId/:conversationId/messages", h.sendMessage)
	router.POST("/conversations/:userId/:conversationId/story", h.finalizeStory)

	router.GET("/stories/:userId", h.listStories)
	router.POST("/stories/:userId", h.saveStory)
	router.GET("/stories/:userId/:storyId", h.getStory)
	router.PUT("/stories/:userId/:storyId", h.updateStory)
	router.DELETE("/stories/:userId/:storyId", h.deleteStory)
	router.GET("/stories/:userId/:storyId/export", h.exportStory)
	router.POST("/stories/:userId/:storyId/speech", h.speakStory)
}

type generateBlogRequest struct {
	UserID     string `json:"userId"`
	Transcript string `json:"transcript"`
}

func (h *Handler) generateBlog(c *gin.Context) {
	var req generateBlogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBlogError(c, invalidBody(err), "Something went wrong")
		return
	}
	out, err := h.blogs.GenerateBlog(c.Request.Context(), req.UserID, req.Transcript)
	if err != nil {
		writeBlogError(c, err, "Something went wrong")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listBlogs(c *gin.Context) {
	blogs, err := h.blogs.ListBlogs(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeBlogError(c, err, "Could not fetch blogs")
		return
	}
	c.JSON(http.StatusOK, blogs)
}

type startConversationRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) startConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err), "Invalid request body")
		return
	}
	conv, err := h.convs.Start(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err, "Failed to start conversation")
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) listConversations(c *gin.Context) {
	convs, err := h.convs.ListConversations(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err, "Could not fetch conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) listTurns(c *gin.Context) {
	turns, err := h.convs.Turns(c.Request.Context(), c.Param("userId"), c.Param("conversationId"))
	if err != nil {
		writeError(c, err, "Could not fetch messages")
		return
	}
	c.JSON(http.StatusOK, turns)
}

func (h *Handler) greet(c *gin.Context) {
	sess, err := h.convs.Session(c.Request.Context(), c.Param("userId"), c.Param("conversationId"))
	if err != nil {
		writeError(c, err, "Failed to start stream")
		return
	}
	relay(c, sess, func(emit usecase.EmitFunc) error {
		_, err := h.chat.Greet(c.Request.Context(), sess, emit)
		return err
	})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err), "Invalid request body")
		return
	}
	sess, err := h.convs.Session(c.Request.Context(), c.Param("userId"), c.Param("conversationId"))
	if err != nil {
		writeError(c, err, "Failed to send message")
		return
	}
	relay(c, sess, func(emit usecase.EmitFunc) error {
		_, err := h.chat.Reply(c.Request.Context(), sess, req.Content, emit)
		return err
	})
}

// relay streams assistant deltas to the client using the chat-completion
// chunk framing. Failures before the first delta become a JSON error; later
// failures are sent as an error event before the stream closes.
func relay(c *gin.Context, sess *usecase.Session, run func(emit usecase.EmitFunc) error) {
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	emit := func(delta string) error {
		start()
		if err := stream.WriteDelta(c.Writer, delta); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	err := run(emit)
	if err != nil && !started {
		writeError(c, err, "Failed to stream reply")
		return
	}
	if err != nil {
		status, msg := errorStatus(err, "Failed to stream reply")
		slog.Warn("stream aborted", "err", err, "status", status,
			"conversation_id", sess.ConversationID, "correlation_id", correlationID(c))
		_ = stream.WriteError(c.Writer, msg)
		c.Writer.Flush()
		return
	}
	start()
	_ = stream.WriteDone(c.Writer)
	c.Writer.Flush()
}

func (h *Handler) finalizeStory(c *gin.Context) {
	sess, err := h.convs.Session(c.Request.Context(), c.Param("userId"), c.Param("conversationId"))
	if err != nil {
		writeError(c, err, "Failed to generate story")
		return
	}
	story, err := h.stories.Finalize(c.Request.Context(), sess)
	if err != nil {
		writeError(c, err, "Failed to generate story")
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *Handler) listStories(c *gin.Context) {
	stories, err := h.convs.LoadHistory(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err, "Could not fetch stories")
		return
	}
	c.JSON(http.StatusOK, stories)
}

type saveStoryRequest struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
	Content        string `json:"content"`
}

func (h *Handler) saveStory(c *gin.Context) {
	var req saveStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err), "Invalid request body")
		return
	}
	story, err := h.stories.Save(c.Request.Context(), c.Param("userId"), req.ConversationID, req.Title, req.Content)
	if err != nil {
		writeError(c, err, "Failed to save story")
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *Handler) getStory(c *gin.Context) {
	story, err := h.stories.Get(c.Request.Context(), c.Param("userId"), c.Param("storyId"))
	if err != nil {
		writeError(c, err, "Could not fetch story")
		return
	}
	c.JSON(http.StatusOK, story)
}

type updateStoryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) updateStory(c *gin.Context) {
	var req updateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err), "Invalid request body")
		return
	}
	story, err := h.stories.Update(c.Request.Context(), c.Param("userId"), c.Param("storyId"), req.Title, req.Content)
	if err != nil {
		writeError(c, err, "Failed to update story")
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *Handler) deleteStory(c *gin.Context) {
	if err := h.stories.Delete(c.Request.Context(), c.Param("userId"), c.Param("storyId")); err != nil {
		writeError(c, err, "Failed to delete story")
		return
	}
	c.Status(http.StatusNoContent)
}

type exportResponse struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	HTML     string `json:"html,omitempty"`
}

func (h *Handler) exportStory(c *gin.Context) {
	doc, err := h.playback.ExportStory(c.Request.Context(), c.Param("userId"), c.Param("storyId"), c.Query("format"))
	if err != nil {
		writeError(c, err, "Failed to export story")
		return
	}
	c.JSON(http.StatusOK, exportResponse{
		Content:  base64.StdEncoding.EncodeToString(doc.Content),
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		HTML:     doc.HTML,
	})
}

type speakRequest struct {
	Voice string `json:"voice"`
}

func (h *Handler) speakStory(c *gin.Context) {
	var req speakRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, invalidBody(err), "Invalid request body")
			return
		}
	}
	audio, err := h.playback.SpeakStory(c.Request.Context(), c.Param("userId"), c.Param("storyId"), req.Voice)
	if err != nil {
		writeError(c, err, "Failed to generate audio")
		return
	}
	c.JSON(http.StatusOK, gin.H{"audioContent": audio})
}

// invalidBody reports a request body that could not be bound.
func invalidBody(err error) error {
	return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
}

// errorStatus maps err to a status and user-facing message. fallback is
// used for server-side failures.
func errorStatus(err error, fallback string) (int, string) {
	switch usecase.CodeOf(err) {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, usecase.InvalidInputMessage(err)
	case usecase.ErrorNotFound:
		return http.StatusNotFound, "Not found"
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, "Rate limits exceeded, please try again later."
	case usecase.ErrorPaymentRequired:
		return http.StatusPaymentRequired, "Payment required, please add funds to your workspace."
	default:
		return http.StatusInternalServerError, fallback
	}
}

// blogErrorStatus answers every blog failure with 500 and fallback, except
// upstream rate and payment limits.
func blogErrorStatus(err error, fallback string) (int, string) {
	switch usecase.CodeOf(err) {
	case usecase.ErrorRateLimited, usecase.ErrorPaymentRequired:
		return errorStatus(err, fallback)
	default:
		return http.StatusInternalServerError, fallback
	}
}

func writeError(c *gin.Context, err error, fallback string) {
	status, msg := errorStatus(err, fallback)
	respondError(c, err, status, msg)
}

func writeBlogError(c *gin.Context, err error, fallback string) {
	status, msg := blogErrorStatus(err, fallback)
	respondError(c, err, status, msg)
}

func respondError(c *gin.Context, err error, status int, msg string) {
	attrs := []any{"err", err, "status", status, "path", c.FullPath(), "correlation_id", correlationID(c)}
	if userID := c.Param("userId"); userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	var ue *usecase.Error
	if errors.As(err, &ue) {
		attrs = append(attrs, "reason", ue.Reason)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Warn("request rejected", attrs...)
	}
	c.JSON(status, gin.H{"error": msg})
}
