package session

import (
	"context"

	"github.com/nexnote/nexnote/models"
)

// State is the per-browser conversation state tracked between requests.
type State struct {
	Messages      []models.Message `json:"messages"`
	CurrentChatID string           `json:"current_chat_id"`
	ChatTitle     string           `json:"chat_title"`
}

// Store keeps session state keyed by cookie ID. A missing or expired session
// yields a zero State, not an error.
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, state State) error
	Delete(ctx context.Context, id string) error
}
