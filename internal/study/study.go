package study

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nexnote/nexnote/models"
)

// textPreviewLimit caps how much of a file's text feeds a study prompt.
const textPreviewLimit = 3000

// Completer generates single-shot chat completions for study prompts.
type Completer interface {
	Chat(ctx context.Context, messages []models.Message) (string, error)
}

// Question is one multiple-choice quiz item.
type Question struct {
	Question    string            `json:"question"`
	Options     map[string]string `json:"options"`
	Correct     string            `json:"correct"`
	Explanation string            `json:"explanation"`
}

// Concepts holds the extracted structure of a set of notes.
type Concepts struct {
	Topics []string `json:"topics"`
	Terms  []string `json:"terms"`
	Points []string `json:"points"`
}

// Flashcard is a front/back study card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Service generates study aids from note text with the chat model. Model or
// parse failures degrade to fallback payloads so the study view always has
// something to render.
type Service struct {
	llm    Completer
	logger *log.Logger
}

func NewService(llm Completer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{llm: llm, logger: logger}
}

// Summary produces a short bullet summary of text.
func (s *Service) Summary(ctx context.Context, text string) string {
	prompt := fmt.Sprintf(`Summarize the following notes in a clear, concise way.
Focus on the main points, key concepts, and important details.
Keep it brief but informative (3-5 bullet points).

Notes:
%s

Summary:`, preview(text))

	out, err := s.complete(ctx, prompt)
	if err != nil {
		return fmt.Sprintf("Error generating summary: %v", err)
	}
	return out
}

// Quiz produces multiple-choice questions from text.
func (s *Service) Quiz(ctx context.Context, text string, numQuestions int) []Question {
	if numQuestions <= 0 {
		numQuestions = 5
	}
	prompt := fmt.Sprintf(`Based on the following notes, create %d multiple-choice questions to test understanding.

For each question:
- Make it specific and clear
- Provide 4 options (A, B, C, D)
- Mark the correct answer
- Add a brief explanation

Format as JSON array:
[{"question": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "correct": "A", "explanation": "..."}]

Notes:
%s

Quiz:`, numQuestions, preview(text))

	out, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Printf("generating quiz: %v", err)
		return fallbackQuiz()
	}

	var questions []Question
	if err := extractJSON(out, "[", "]", &questions); err != nil {
		s.logger.Printf("parsing quiz response: %v", err)
		return fallbackQuiz()
	}
	return questions
}

// ExtractConcepts pulls main topics, key terms, and important points from
// text.
func (s *Service) ExtractConcepts(ctx context.Context, text string) Concepts {
	prompt := fmt.Sprintf(`Analyze the following notes and extract:
1. Main Topics (3-5 major subjects covered)
2. Key Terms (important vocabulary or concepts)
3. Important Points (critical information to remember)

Format as JSON:
{"topics": ["topic1", "topic2", ...], "terms": ["term1", "term2", ...], "points": ["point1", "point2", ...]}

Notes:
%s

Analysis:`, preview(text))

	out, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Printf("extracting concepts: %v", err)
		return fallbackConcepts()
	}

	var concepts Concepts
	if err := extractJSON(out, "{", "}", &concepts); err != nil {
		s.logger.Printf("parsing concepts response: %v", err)
		return fallbackConcepts()
	}
	return concepts
}

// Flashcards produces front/back study cards from text.
func (s *Service) Flashcards(ctx context.Context, text string, numCards int) []Flashcard {
	if numCards <= 0 {
		numCards = 10
	}
	prompt := fmt.Sprintf(`Create %d flashcards from the following notes.

Each flashcard should have:
- Front: A question or term
- Back: The answer or definition

Format as JSON array:
[{"front": "What is...?", "back": "The answer is..."}]

Notes:
%s

Flashcards:`, numCards, preview(text))

	out, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Printf("generating flashcards: %v", err)
		return fallbackFlashcards()
	}

	var cards []Flashcard
	if err := extractJSON(out, "[", "]", &cards); err != nil {
		s.logger.Printf("parsing flashcards response: %v", err)
		return fallbackFlashcards()
	}
	return cards
}

// Score tallies submitted quiz answers: answers maps question index (as a
// string) to the chosen option letter.
func Score(questions []Question, answers map[string]string) (correct, total, percent int) {
	total = len(questions)
	for i, q := range questions {
		if answers[fmt.Sprintf("%d", i)] == q.Correct {
			correct++
		}
	}
	if total > 0 {
		percent = correct * 100 / total
	}
	return correct, total, percent
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	return s.llm.Chat(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}})
}

// extractJSON pulls the outermost open..close span from model output and
// unmarshals it. Models often wrap JSON in prose; the span extraction skips
// that wrapping.
func extractJSON(content, open, close string, out any) error {
	start := strings.Index(content, open)
	end := strings.LastIndex(content, close)
	if start == -1 || end <= start {
		return fmt.Errorf("no %s...%s span in model output", open, close)
	}
	return json.Unmarshal([]byte(content[start:end+1]), out)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= textPreviewLimit {
		return text
	}
	return string(runes[:textPreviewLimit])
}

func fallbackQuiz() []Question {
	return []Question{{
		Question: "What are the main topics covered in these notes?",
		Options: map[string]string{
			"A": "Please review the notes",
			"B": "Unable to generate quiz",
			"C": "Try again",
			"D": "All of the above",
		},
		Correct:     "A",
		Explanation: "Quiz generation encountered an error. Please try with shorter text.",
	}}
}

func fallbackConcepts() Concepts {
	return Concepts{
		Topics: []string{"Unable to extract topics"},
		Terms:  []string{"Try again with different notes"},
		Points: []string{"Processing error occurred"},
	}
}

func fallbackFlashcards() []Flashcard {
	return []Flashcard{{
		Front: "Error generating flashcards",
		Back:  "Please try again with different notes",
	}}
}
