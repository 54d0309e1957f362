package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nexnote/nexnote/internal/assistant"
	"github.com/nexnote/nexnote/internal/knowledge"
)

var allowedExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".docx": true,
	".md":   true,
}

// Ingestor is the document-ingestion surface of the assistant service.
type Ingestor interface {
	ProcessFiles(ctx context.Context, files []assistant.UploadFile) (map[string]int, error)
}

type FilesHandler struct {
	Ingestor      Ingestor
	Store         knowledge.Store
	MaxUploadSize int64
	Logger        *log.Logger
}

func (h *FilesHandler) Register(g *echo.Group) {
	g.POST("/upload_files", h.uploadFiles)
	g.GET("/get_uploaded_files", h.getUploadedFiles)
	g.POST("/clear_knowledge_base", h.clearKnowledgeBase)
}

func allowedFile(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func (h *FilesHandler) uploadFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No files provided")
	}
	parts := form.File["files[]"]
	if len(parts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No files provided")
	}

	var files []assistant.UploadFile
	for _, part := range parts {
		// Strip any client-supplied path components.
		name := filepath.Base(part.Filename)
		if name == "" || name == "." || !allowedFile(name) {
			h.Logger.Printf("skipping disallowed upload %q", part.Filename)
			continue
		}
		if h.MaxUploadSize > 0 && part.Size > h.MaxUploadSize {
			h.Logger.Printf("skipping oversized upload %q (%d bytes)", name, part.Size)
			continue
		}

		src, err := part.Open()
		if err != nil {
			h.Logger.Printf("opening upload %q: %v", name, err)
			continue
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			h.Logger.Printf("reading upload %q: %v", name, err)
			continue
		}
		files = append(files, assistant.UploadFile{Filename: name, Data: data})
	}

	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No files provided")
	}

	processed, err := h.Ingestor.ProcessFiles(c.Request().Context(), files)
	if err != nil {
		h.Logger.Printf("processing uploads: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process files")
	}

	return c.JSON(http.StatusOK, UploadFilesResponse{
		Success:       true,
		UploadedCount: len(files),
		Processed:     processed,
	})
}

func (h *FilesHandler) getUploadedFiles(c echo.Context) error {
	files, err := h.Store.UploadedFilesApprox(c.Request().Context())
	if err != nil {
		// A broken store reads as an empty knowledge base, not a failure.
		h.Logger.Printf("listing uploaded files: %v", err)
		files = nil
	}
	if files == nil {
		files = map[string]int{}
	}
	return c.JSON(http.StatusOK, UploadedFilesResponse{Files: files})
}

func (h *FilesHandler) clearKnowledgeBase(c echo.Context) error {
	if err := h.Store.Clear(c.Request().Context()); err != nil {
		h.Logger.Printf("clearing knowledge base: %v", err)
		return c.JSON(http.StatusOK, ClearKnowledgeBaseResponse{Success: false})
	}
	return c.JSON(http.StatusOK, ClearKnowledgeBaseResponse{Success: true})
}
