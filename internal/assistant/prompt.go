package assistant

import (
	"fmt"
	"strings"

	"github.com/nexnote/nexnote/internal/knowledge"
	"github.com/nexnote/nexnote/models"
)

const (
	// historyLimit bounds how many prior turns are forwarded to the model.
	historyLimit = 10
	// contextMatches is how many retrieved matches feed the prompt context.
	contextMatches = 3
	// contextCharLimit truncates each match's text inside the context block.
	contextCharLimit = 800
)

// systemPrompt is the assistant persona. Its wording is an external contract
// with the chat model; changing it changes answer behaviour.
const systemPrompt = `You are NexNote, an intelligent AI study assistant. You help students learn by providing clear, concise, and conversational responses.

Guidelines:
- Answer naturally and conversationally
- Use simple formatting sparingly (only when it truly helps clarity)
- Focus on the actual content, not excessive structure
- Be helpful and friendly without being overly formal
- When using the knowledge base, integrate the information smoothly into your answer
- Remember the conversation context and refer back to previous messages when relevant`

// BuildMessages assembles the message sequence for the chat model: the system
// persona, the most recent historyLimit turns of prior conversation, and a
// final user message embedding the retrieved context and the query. Pure
// function of its inputs; performs no I/O.
func BuildMessages(query string, matches []knowledge.Match, history []models.Message) []models.Message {
	contextText := contextBlock(matches)

	var prompt string
	if contextText != "" {
		prompt = fmt.Sprintf(`Based on the following information from the knowledge base:

%s

Question: %s

Provide a clear and natural answer. Use simple formatting only when necessary for clarity (like separating topics or highlighting key points).`, contextText, query)
	} else {
		prompt = fmt.Sprintf(`Question: %s

Provide a clear and natural answer. Keep it conversational and easy to understand.`, query)
	}

	messages := make([]models.Message, 0, historyLimit+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages = append(messages, history...)

	return append(messages, models.Message{Role: models.RoleUser, Content: prompt})
}

// contextBlock concatenates the first contextMatches non-empty matches, each
// labelled with its source file and truncated to contextCharLimit characters.
func contextBlock(matches []knowledge.Match) string {
	if len(matches) > contextMatches {
		matches = matches[:contextMatches]
	}

	var parts []string
	for _, m := range matches {
		if m.Metadata.Text == "" {
			continue
		}
		name := m.Metadata.Filename
		if name == "" {
			name = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("📄 From %s:\n%s", name, truncate(m.Metadata.Text, contextCharLimit)))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
