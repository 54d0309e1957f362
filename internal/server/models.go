package server

import (
	"github.com/nexnote/nexnote/internal/chatlog"
	"github.com/nexnote/nexnote/internal/study"
	"github.com/nexnote/nexnote/models"
)

type SendMessageRequest struct {
	Message string `json:"message"`
}

type SendMessageResponse struct {
	Response  string          `json:"response"`
	Sources   []models.Source `json:"sources"`
	ChatTitle string          `json:"chat_title"`
}

// StreamEvent is one NDJSON line of a streamed reply. Fragment events carry
// content; the final event has Done set and carries sources and the title.
type StreamEvent struct {
	Content   string          `json:"content,omitempty"`
	Done      bool            `json:"done,omitempty"`
	Sources   []models.Source `json:"sources,omitempty"`
	ChatTitle string          `json:"chat_title,omitempty"`
}

type UploadFilesResponse struct {
	Success       bool           `json:"success"`
	UploadedCount int            `json:"uploaded_count"`
	Processed     map[string]int `json:"processed"`
}

type UploadedFilesResponse struct {
	Files map[string]int `json:"files"`
}

type NewChatResponse struct {
	Success bool `json:"success"`
}

type LoadChatResponse struct {
	Success  bool             `json:"success"`
	Messages []models.Message `json:"messages"`
	Title    string           `json:"title"`
}

type ChatsResponse struct {
	Chats []chatlog.Summary `json:"chats"`
}

type DeleteChatResponse struct {
	Success bool `json:"success"`
}

type ClearKnowledgeBaseResponse struct {
	Success bool `json:"success"`
}

type StudyFileRequest struct {
	Filename     string `json:"filename"`
	NumQuestions int    `json:"num_questions"`
	NumCards     int    `json:"num_cards"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type QuizResponse struct {
	Questions []study.Question `json:"questions"`
}

type SubmitQuizRequest struct {
	Filename  string            `json:"filename"`
	Questions []study.Question  `json:"questions"`
	Answers   map[string]string `json:"answers"`
}

type SubmitQuizResponse struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
	Score   int `json:"score"`
}

type ConceptsResponse struct {
	Concepts study.Concepts `json:"concepts"`
}

type FlashcardsResponse struct {
	Flashcards []study.Flashcard `json:"flashcards"`
}

type StudyProgressResponse struct {
	Progress map[string]study.Progress `json:"progress"`
}
