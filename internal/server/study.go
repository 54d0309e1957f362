package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nexnote/nexnote/internal/study"
)

// FileTexter reassembles a document's text from its stored chunks.
type FileTexter interface {
	FileText(ctx context.Context, filename string) (string, bool)
}

// StudyTools is the generation surface of the study service.
type StudyTools interface {
	Summary(ctx context.Context, text string) string
	Quiz(ctx context.Context, text string, numQuestions int) []study.Question
	ExtractConcepts(ctx context.Context, text string) study.Concepts
	Flashcards(ctx context.Context, text string, numCards int) []study.Flashcard
}

type StudyHandler struct {
	Assistant FileTexter
	Tools     StudyTools
	Progress  *study.ProgressRepository
}

func (h *StudyHandler) Register(g *echo.Group) {
	g.POST("/generate_summary", h.generateSummary)
	g.POST("/generate_quiz", h.generateQuiz)
	g.POST("/submit_quiz", h.submitQuiz)
	g.POST("/extract_concepts", h.extractConcepts)
	g.POST("/generate_flashcards", h.generateFlashcards)
	g.GET("/get_study_progress", h.getStudyProgress)
}

// fileText binds the request and resolves the named file's text, mapping an
// unknown file to 404.
func (h *StudyHandler) fileText(c echo.Context) (StudyFileRequest, string, error) {
	var req StudyFileRequest
	if err := c.Bind(&req); err != nil {
		return req, "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Filename == "" {
		return req, "", echo.NewHTTPError(http.StatusBadRequest, "filename required")
	}
	text, ok := h.Assistant.FileText(c.Request().Context(), req.Filename)
	if !ok {
		return req, "", echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	return req, text, nil
}

func (h *StudyHandler) generateSummary(c echo.Context) error {
	_, text, err := h.fileText(c)
	if err != nil {
		return err
	}
	summary := h.Tools.Summary(c.Request().Context(), text)
	return c.JSON(http.StatusOK, SummaryResponse{Summary: summary})
}

func (h *StudyHandler) generateQuiz(c echo.Context) error {
	req, text, err := h.fileText(c)
	if err != nil {
		return err
	}
	if req.NumQuestions <= 0 {
		req.NumQuestions = 5
	}
	questions := h.Tools.Quiz(c.Request().Context(), text, req.NumQuestions)
	return c.JSON(http.StatusOK, QuizResponse{Questions: questions})
}

func (h *StudyHandler) submitQuiz(c echo.Context) error {
	var req SubmitQuizRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	correct, total, score := study.Score(req.Questions, req.Answers)
	if req.Filename != "" {
		if err := h.Progress.MarkStudied(req.Filename, &score); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusOK, SubmitQuizResponse{
		Correct: correct,
		Total:   total,
		Score:   score,
	})
}

func (h *StudyHandler) extractConcepts(c echo.Context) error {
	_, text, err := h.fileText(c)
	if err != nil {
		return err
	}
	concepts := h.Tools.ExtractConcepts(c.Request().Context(), text)
	return c.JSON(http.StatusOK, ConceptsResponse{Concepts: concepts})
}

func (h *StudyHandler) generateFlashcards(c echo.Context) error {
	req, text, err := h.fileText(c)
	if err != nil {
		return err
	}
	if req.NumCards <= 0 {
		req.NumCards = 10
	}
	cards := h.Tools.Flashcards(c.Request().Context(), text, req.NumCards)
	return c.JSON(http.StatusOK, FlashcardsResponse{Flashcards: cards})
}

func (h *StudyHandler) getStudyProgress(c echo.Context) error {
	progress, err := h.Progress.All()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, StudyProgressResponse{Progress: progress})
}
