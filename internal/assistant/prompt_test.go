package assistant

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nexnote/nexnote/internal/knowledge"
	"github.com/nexnote/nexnote/models"
)

func match(filename, text string) knowledge.Match {
	return knowledge.Match{Metadata: knowledge.Metadata{Filename: filename, Text: text}}
}

func TestBuildMessagesUsesFirstThreeMatches(t *testing.T) {
	matches := []knowledge.Match{
		match("a.txt", "alpha"),
		match("b.txt", "bravo"),
		match("c.txt", "charlie"),
		match("d.txt", "delta"),
		match("e.txt", "echo"),
	}
	msgs := BuildMessages("question", matches, nil)
	final := msgs[len(msgs)-1].Content

	for _, want := range []string{"alpha", "bravo", "charlie"} {
		if !strings.Contains(final, want) {
			t.Errorf("prompt missing context %q", want)
		}
	}
	for _, unwanted := range []string{"delta", "echo"} {
		if strings.Contains(final, unwanted) {
			t.Errorf("prompt must not include match beyond the first 3: %q", unwanted)
		}
	}
}

func TestBuildMessagesSkipsEmptyText(t *testing.T) {
	matches := []knowledge.Match{
		match("a.txt", "alpha"),
		match("b.txt", ""),
		match("c.txt", "charlie"),
	}
	msgs := BuildMessages("question", matches, nil)
	final := msgs[len(msgs)-1].Content

	if strings.Contains(final, "From b.txt") {
		t.Error("empty-text match must be excluded from context")
	}
	if !strings.Contains(final, "alpha") || !strings.Contains(final, "charlie") {
		t.Error("non-empty matches missing from context")
	}
}

func TestBuildMessagesTruncatesContext(t *testing.T) {
	long := strings.Repeat("x", 2000)
	msgs := BuildMessages("q", []knowledge.Match{match("big.txt", long)}, nil)
	final := msgs[len(msgs)-1].Content

	if strings.Contains(final, strings.Repeat("x", 801)) {
		t.Error("context text not truncated to 800 characters")
	}
	if !strings.Contains(final, strings.Repeat("x", 800)) {
		t.Error("truncated context shorter than 800 characters")
	}
}

func TestBuildMessagesHistoryTruncation(t *testing.T) {
	history := make([]models.Message, 14)
	for i := range history {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history[i] = models.Message{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}

	msgs := BuildMessages("q", []knowledge.Match{match("a.txt", "ctx")}, history)
	if len(msgs) != 12 {
		t.Fatalf("expected 12 messages (system + 10 history + user), got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleSystem {
		t.Errorf("first message role = %s, want system", msgs[0].Role)
	}
	if msgs[len(msgs)-1].Role != models.RoleUser {
		t.Errorf("last message role = %s, want user", msgs[len(msgs)-1].Role)
	}
	// The kept window is the last 10 turns in original relative order.
	if msgs[1].Content != "turn 4" {
		t.Errorf("history window starts at %q, want turn 4", msgs[1].Content)
	}
	if msgs[10].Content != "turn 13" {
		t.Errorf("history window ends at %q, want turn 13", msgs[10].Content)
	}
}

func TestBuildMessagesWithoutContext(t *testing.T) {
	msgs := BuildMessages("what is photosynthesis", nil, nil)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(msgs))
	}
	final := msgs[1].Content
	if strings.Contains(final, "knowledge base") {
		t.Error("context-free prompt must not mention the knowledge base")
	}
	if !strings.Contains(final, "what is photosynthesis") {
		t.Error("prompt missing the query")
	}
}

func TestBuildMessagesSystemPersona(t *testing.T) {
	msgs := BuildMessages("q", nil, nil)
	if !strings.Contains(msgs[0].Content, "You are NexNote") {
		t.Error("system message missing persona")
	}
}

func TestIsScheduleRequest(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"Schedule OS revision tomorrow at 8 PM", true},
		{"please remind me about the exam", true},
		{"can you add event for Friday", true},
		{"ADD TO CALENDAR: study group", true},
		{"what does chapter 3 say about scheduling algorithms", true},
		{"explain photosynthesis", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsScheduleRequest(tc.message); got != tc.want {
			t.Errorf("IsScheduleRequest(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}
