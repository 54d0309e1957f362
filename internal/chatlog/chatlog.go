package chatlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nexnote/nexnote/models"
)

// titleLimit caps generated chat titles.
const titleLimit = 50

// Chat is the persisted form of a conversation: one JSON document per chat
// ID.
type Chat struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Messages     []models.Message `json:"messages"`
	Timestamp    string           `json:"timestamp"`
	MessageCount int              `json:"message_count"`
}

// Summary is the listing form of a saved chat, without its messages.
type Summary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Timestamp    string `json:"timestamp"`
	MessageCount int    `json:"message_count"`
}

// Repository persists chats as JSON files under a base directory. No ambient
// state: the directory is fixed at construction.
type Repository struct {
	dir string
	now func() time.Time
}

func NewRepository(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chat directory: %w", err)
	}
	return &Repository{dir: dir, now: time.Now}, nil
}

// Save writes the chat document for id, overwriting any previous version.
func (r *Repository) Save(id, title string, messages []models.Message) error {
	chat := Chat{
		ID:           id,
		Title:        title,
		Messages:     messages,
		Timestamp:    r.now().Format(time.RFC3339),
		MessageCount: len(messages),
	}
	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling chat %s: %w", id, err)
	}
	if err := os.WriteFile(r.path(id), data, 0o644); err != nil {
		return fmt.Errorf("writing chat %s: %w", id, err)
	}
	return nil
}

// Load returns the chat for id, or found=false when no such chat exists.
func (r *Repository) Load(id string) (Chat, bool, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return Chat{}, false, nil
	}
	if err != nil {
		return Chat{}, false, fmt.Errorf("reading chat %s: %w", id, err)
	}
	var chat Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return Chat{}, false, fmt.Errorf("parsing chat %s: %w", id, err)
	}
	return chat, true, nil
}

// List returns summaries of all saved chats, newest first. Unreadable files
// are skipped rather than failing the listing.
func (r *Repository) List() ([]Summary, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		var chat Chat
		if err := json.Unmarshal(data, &chat); err != nil {
			continue
		}
		title := chat.Title
		if title == "" {
			title = "Untitled Chat"
		}
		summaries = append(summaries, Summary{
			ID:           chat.ID,
			Title:        title,
			Timestamp:    chat.Timestamp,
			MessageCount: chat.MessageCount,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Timestamp > summaries[j].Timestamp })
	return summaries, nil
}

// Delete removes the chat for id. Returns false when no such chat exists.
func (r *Repository) Delete(id string) (bool, error) {
	err := os.Remove(r.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting chat %s: %w", id, err)
	}
	return true, nil
}

func (r *Repository) path(id string) string {
	// Chat IDs are server-generated, but keep path traversal out anyway.
	return filepath.Join(r.dir, filepath.Base(id)+".json")
}

// TitleFromMessage derives a chat title from the first user message: its
// first titleLimit characters, with an ellipsis when truncated.
func TitleFromMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
