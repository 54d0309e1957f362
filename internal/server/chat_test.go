package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nexnote/nexnote/internal/assistant"
	"github.com/nexnote/nexnote/internal/chatlog"
	"github.com/nexnote/nexnote/internal/session"
	"github.com/nexnote/nexnote/models"
)

type fakeAnswerer struct {
	answer     assistant.Answer
	fragments  []string
	sources    []models.Source
	gotQuery   string
	gotHistory []models.Message
}

func (f *fakeAnswerer) Answer(ctx context.Context, query string, history []models.Message) assistant.Answer {
	f.gotQuery = query
	f.gotHistory = history
	return f.answer
}

func (f *fakeAnswerer) AnswerStream(ctx context.Context, query string, history []models.Message, fn func(string) error) []models.Source {
	f.gotQuery = query
	f.gotHistory = history
	for _, fr := range f.fragments {
		if err := fn(fr); err != nil {
			break
		}
	}
	return f.sources
}

func newChatHandler(t *testing.T, fake *fakeAnswerer) (*ChatHandler, *session.MemoryStore) {
	t.Helper()
	chats, err := chatlog.NewRepository(t.TempDir())
	if err != nil {
		t.Fatalf("chatlog.NewRepository: %v", err)
	}
	store := session.NewMemoryStore(time.Hour)
	return &ChatHandler{
		Assistant: fake,
		Chats:     chats,
		Sessions:  &Sessions{Store: store, CookieName: "nexnote_session", TTL: time.Hour},
		Logger:    log.New(io.Discard, "", 0),
		Now:       func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, store
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestSendMessage(t *testing.T) {
	e := echo.New()
	fake := &fakeAnswerer{answer: assistant.Answer{
		Text:    "photosynthesis converts light to energy",
		Sources: []models.Source{{Filename: "bio.pdf", Score: 0.9, Text: "snippet"}},
	}}
	handler, store := newChatHandler(t, fake)

	req := jsonRequest(http.MethodPost, "/api/send_message", `{"message":"explain photosynthesis"}`)
	req.AddCookie(&http.Cookie{Name: "nexnote_session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := handler.sendMessage(ctx); err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "photosynthesis converts light to energy" {
		t.Fatalf("unexpected response text: %q", resp.Response)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Filename != "bio.pdf" {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}
	if resp.ChatTitle != "explain photosynthesis" {
		t.Fatalf("unexpected chat title: %q", resp.ChatTitle)
	}

	state, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("session get: %v", err)
	}
	if len(state.Messages) != 2 {
		t.Fatalf("expected 2 session messages, got %d", len(state.Messages))
	}
	if state.CurrentChatID != "20250301_120000" {
		t.Fatalf("unexpected chat id: %q", state.CurrentChatID)
	}

	chat, found, err := handler.Chats.Load("20250301_120000")
	if err != nil || !found {
		t.Fatalf("expected auto-saved chat, found=%v err=%v", found, err)
	}
	if len(chat.Messages) != 2 || chat.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected saved chat: %+v", chat)
	}
}

func TestSendMessageForwardsHistory(t *testing.T) {
	e := echo.New()
	fake := &fakeAnswerer{answer: assistant.Answer{Text: "again"}}
	handler, store := newChatHandler(t, fake)

	_ = store.Save(context.Background(), "sess-1", session.State{
		CurrentChatID: "20250101_000000",
		ChatTitle:     "earlier",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "first"},
			{Role: models.RoleAssistant, Content: "reply"},
		},
	})

	req := jsonRequest(http.MethodPost, "/api/send_message", `{"message":"second"}`)
	req.AddCookie(&http.Cookie{Name: "nexnote_session", Value: "sess-1"})
	rec := httptest.NewRecorder()

	if err := handler.sendMessage(e.NewContext(req, rec)); err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	if len(fake.gotHistory) != 2 || fake.gotHistory[0].Content != "first" {
		t.Fatalf("expected prior turns forwarded, got %+v", fake.gotHistory)
	}

	state, _ := store.Get(context.Background(), "sess-1")
	if state.ChatTitle != "earlier" {
		t.Fatalf("title should not change on later turns, got %q", state.ChatTitle)
	}
	if len(state.Messages) != 4 {
		t.Fatalf("expected 4 session messages, got %d", len(state.Messages))
	}
}

func TestSendMessageEmpty(t *testing.T) {
	e := echo.New()
	handler, _ := newChatHandler(t, &fakeAnswerer{})

	req := jsonRequest(http.MethodPost, "/api/send_message", `{"message":""}`)
	rec := httptest.NewRecorder()

	err := handler.sendMessage(e.NewContext(req, rec))
	if err == nil {
		t.Fatalf("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %#v", err)
	}
}

func TestSendMessageScheduleRequestHidesSources(t *testing.T) {
	e := echo.New()
	fake := &fakeAnswerer{answer: assistant.Answer{
		Text:    "noted",
		Sources: []models.Source{{Filename: "notes.txt"}},
	}}
	handler, _ := newChatHandler(t, fake)

	req := jsonRequest(http.MethodPost, "/api/send_message", `{"message":"remind me to revise tomorrow"}`)
	req.AddCookie(&http.Cookie{Name: "nexnote_session", Value: "sess-1"})
	rec := httptest.NewRecorder()

	if err := handler.sendMessage(e.NewContext(req, rec)); err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	var resp SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("expected no sources for schedule request, got %+v", resp.Sources)
	}
}

func TestSendMessageStream(t *testing.T) {
	e := echo.New()
	fake := &fakeAnswerer{
		fragments: []string{"Hel", "lo"},
		sources:   []models.Source{{Filename: "notes.txt", Score: 0.8}},
	}
	handler, store := newChatHandler(t, fake)

	req := jsonRequest(http.MethodPost, "/api/send_message_stream", `{"message":"hi"}`)
	req.AddCookie(&http.Cookie{Name: "nexnote_session", Value: "sess-1"})
	rec := httptest.NewRecorder()

	if err := handler.sendMessageStream(e.NewContext(req, rec)); err != nil {
		t.Fatalf("sendMessageStream: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []StreamEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var ev StreamEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("decode event %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Content+events[1].Content != "Hello" {
		t.Fatalf("unexpected fragments: %+v", events[:2])
	}
	last := events[2]
	if !last.Done || len(last.Sources) != 1 || last.ChatTitle != "hi" {
		t.Fatalf("unexpected final event: %+v", last)
	}

	state, _ := store.Get(context.Background(), "sess-1")
	if len(state.Messages) != 2 || state.Messages[1].Content != "Hello" {
		t.Fatalf("expected assembled reply in session, got %+v", state.Messages)
	}
}

func TestNewChatResetsSession(t *testing.T) {
	e := echo.New()
	handler, store := newChatHandler(t, &fakeAnswerer{})

	_ = store.Save(context.Background(), "sess-1", session.State{
		CurrentChatID: "20250101_000000",
		ChatTitle:     "old chat",
		Messages:      []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})

	req := jsonRequest(http.MethodPost, "/api/new_chat", "")
	req.AddCookie(&http.Cookie{Name: "nexnote_session", Value: "sess-1"})
	rec := httptest.NewRecorder()

	if err := handler.newChat(e.NewContext(req, rec)); err != nil {
		t.Fatalf("newChat: %v", err)
	}

	// The previous chat is saved before the reset.
	if _, found, _ := handler.Chats.Load("20250101_000000"); !found {
		t.Fatalf("expected previous chat saved")
	}

	state, _ := store.Get(context.Background(), "sess-1")
	if len(state.Messages) != 0 || state.ChatTitle != "New Chat" {
		t.Fatalf("expected reset state, got %+v", state)
	}
	if state.CurrentChatID != "20250301_120000" {
		t.Fatalf("unexpected new chat id %q", state.CurrentChatID)
	}
}

func TestLoadChat(t *testing.T) {
	e := echo.New()
	handler, store := newChatHandler(t, &fakeAnswerer{})

	msgs := []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}
	if err := handler.Chats.Save("20250101_000000", "saved chat", msgs); err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/load_chat/20250101_000000", nil)
	req.AddCookie(&http.Cookie{Name: "nexnote_session", Value: "sess-1"})
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("20250101_000000")

	if err := handler.loadChat(ctx); err != nil {
		t.Fatalf("loadChat: %v", err)
	}
	var resp LoadChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Title != "saved chat" || len(resp.Messages) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	state, _ := store.Get(context.Background(), "sess-1")
	if state.CurrentChatID != "20250101_000000" || state.ChatTitle != "saved chat" {
		t.Fatalf("session not updated: %+v", state)
	}
}

func TestLoadChatMissing(t *testing.T) {
	e := echo.New()
	handler, _ := newChatHandler(t, &fakeAnswerer{})

	req := httptest.NewRequest(http.MethodGet, "/api/load_chat/nope", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("nope")

	err := handler.loadChat(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %#v", err)
	}
}

func TestDeleteChat(t *testing.T) {
	e := echo.New()
	handler, _ := newChatHandler(t, &fakeAnswerer{})
	_ = handler.Chats.Save("20250101_000000", "t", []models.Message{{Role: models.RoleUser, Content: "x"}})

	req := httptest.NewRequest(http.MethodDelete, "/api/delete_chat/20250101_000000", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("20250101_000000")

	if err := handler.deleteChat(ctx); err != nil {
		t.Fatalf("deleteChat: %v", err)
	}
	var resp DeleteChatResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success {
		t.Fatalf("expected success")
	}
	if _, found, _ := handler.Chats.Load("20250101_000000"); found {
		t.Fatalf("chat should be gone")
	}
}

func TestGetChats(t *testing.T) {
	e := echo.New()
	handler, _ := newChatHandler(t, &fakeAnswerer{})
	_ = handler.Chats.Save("20250101_000000", "first", []models.Message{{Role: models.RoleUser, Content: "x"}})

	req := httptest.NewRequest(http.MethodGet, "/api/get_chats", nil)
	rec := httptest.NewRecorder()

	if err := handler.getChats(e.NewContext(req, rec)); err != nil {
		t.Fatalf("getChats: %v", err)
	}
	var resp ChatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Chats) != 1 || resp.Chats[0].Title != "first" {
		t.Fatalf("unexpected chats: %+v", resp.Chats)
	}
}
