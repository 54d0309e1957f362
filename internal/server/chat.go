package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nexnote/nexnote/internal/assistant"
	"github.com/nexnote/nexnote/internal/chatlog"
	"github.com/nexnote/nexnote/internal/session"
	"github.com/nexnote/nexnote/models"
)

// Answerer is the conversational surface of the assistant service.
type Answerer interface {
	Answer(ctx context.Context, query string, history []models.Message) assistant.Answer
	AnswerStream(ctx context.Context, query string, history []models.Message, fn func(fragment string) error) []models.Source
}

type ChatHandler struct {
	Assistant Answerer
	Chats     *chatlog.Repository
	Sessions  *Sessions
	Logger    *log.Logger
	Now       func() time.Time
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/send_message", h.sendMessage)
	g.POST("/send_message_stream", h.sendMessageStream)
	g.POST("/new_chat", h.newChat)
	g.GET("/load_chat/:id", h.loadChat)
	g.GET("/get_chats", h.getChats)
	g.DELETE("/delete_chat/:id", h.deleteChat)
}

func (h *ChatHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// prepare binds the message, loads session state, and assigns a chat ID and
// title when the conversation is new.
func (h *ChatHandler) prepare(c echo.Context) (string, session.State, string, error) {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return "", session.State{}, "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return "", session.State{}, "", echo.NewHTTPError(http.StatusBadRequest, "No message provided")
	}

	id, state, err := h.Sessions.load(c)
	if err != nil {
		return "", session.State{}, "", echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if state.CurrentChatID == "" {
		state.CurrentChatID = h.now().Format("20060102_150405")
	}
	if len(state.Messages) == 0 {
		state.ChatTitle = chatlog.TitleFromMessage(req.Message)
	}
	return id, state, req.Message, nil
}

// finish appends the exchange to the session and auto-saves the chat log.
func (h *ChatHandler) finish(c echo.Context, id string, state session.State, userMessage, reply string) session.State {
	state.Messages = append(state.Messages,
		models.Message{Role: models.RoleUser, Content: userMessage},
		models.Message{Role: models.RoleAssistant, Content: reply},
	)
	if err := h.Sessions.save(c, id, state); err != nil {
		h.Logger.Printf("saving session %s: %v", id, err)
	}
	if err := h.Chats.Save(state.CurrentChatID, state.ChatTitle, state.Messages); err != nil {
		h.Logger.Printf("saving chat %s: %v", state.CurrentChatID, err)
	}
	return state
}

func (h *ChatHandler) sendMessage(c echo.Context) error {
	id, state, message, err := h.prepare(c)
	if err != nil {
		return err
	}

	ans := h.Assistant.Answer(c.Request().Context(), message, state.Messages)

	// Scheduling phrases get no retrieval attributions; the calendar
	// integration decides what to do with them client-side.
	srcs := ans.Sources
	if assistant.IsScheduleRequest(message) {
		srcs = nil
	}

	h.finish(c, id, state, message, ans.Text)
	return c.JSON(http.StatusOK, SendMessageResponse{
		Response:  ans.Text,
		Sources:   srcs,
		ChatTitle: state.ChatTitle,
	})
}

func (h *ChatHandler) sendMessageStream(c echo.Context) error {
	id, state, message, err := h.prepare(c)
	if err != nil {
		return err
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(resp)

	var full []byte
	srcs := h.Assistant.AnswerStream(c.Request().Context(), message, state.Messages, func(fragment string) error {
		full = append(full, fragment...)
		if err := enc.Encode(StreamEvent{Content: fragment}); err != nil {
			return err
		}
		resp.Flush()
		return nil
	})
	if assistant.IsScheduleRequest(message) {
		srcs = nil
	}

	h.finish(c, id, state, message, string(full))
	if err := enc.Encode(StreamEvent{Done: true, Sources: srcs, ChatTitle: state.ChatTitle}); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

func (h *ChatHandler) newChat(c echo.Context) error {
	id, state, err := h.Sessions.load(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if state.CurrentChatID != "" && len(state.Messages) > 0 {
		if err := h.Chats.Save(state.CurrentChatID, state.ChatTitle, state.Messages); err != nil {
			h.Logger.Printf("saving chat %s: %v", state.CurrentChatID, err)
		}
	}

	state = session.State{
		CurrentChatID: h.now().Format("20060102_150405"),
		ChatTitle:     "New Chat",
	}
	if err := h.Sessions.save(c, id, state); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, NewChatResponse{Success: true})
}

func (h *ChatHandler) loadChat(c echo.Context) error {
	chatID := c.Param("id")
	chat, found, err := h.Chats.Load(chatID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "Chat not found")
	}

	id, state, err := h.Sessions.load(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	state.CurrentChatID = chatID
	state.Messages = chat.Messages
	state.ChatTitle = chat.Title
	if err := h.Sessions.save(c, id, state); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, LoadChatResponse{
		Success:  true,
		Messages: chat.Messages,
		Title:    chat.Title,
	})
}

func (h *ChatHandler) getChats(c echo.Context) error {
	chats, err := h.Chats.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChatsResponse{Chats: chats})
}

func (h *ChatHandler) deleteChat(c echo.Context) error {
	deleted, err := h.Chats.Delete(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, DeleteChatResponse{Success: deleted})
}
