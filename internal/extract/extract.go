package extract

import (
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind identifies the extraction strategy for an uploaded file.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPDF
	KindDocx
)

// Classify maps a filename to its extraction Kind by extension,
// case-insensitively.
func Classify(filename string) Kind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "txt", "md":
		return KindText
	case "pdf":
		return KindPDF
	case "docx":
		return KindDocx
	default:
		return KindUnsupported
	}
}

// Extractor converts uploaded file bytes into plain text. Parse failures are
// logged and degrade to empty text so one corrupt file never aborts a batch.
type Extractor struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{logger: logger}
}

// Extract returns the plain text of data according to the filename's
// extension. Unsupported extensions yield an empty string; callers must treat
// empty text as "nothing extracted". The input slice is never mutated.
func (e *Extractor) Extract(filename string, data []byte) string {
	switch Classify(filename) {
	case KindText:
		if !utf8.Valid(data) {
			e.logger.Printf("skipping %s: not valid UTF-8", filename)
			return ""
		}
		return string(data)
	case KindPDF:
		text, err := pdfText(data)
		if err != nil {
			e.logger.Printf("reading %s: %v", filename, err)
			return ""
		}
		return text
	case KindDocx:
		text, err := docxText(data)
		if err != nil {
			e.logger.Printf("reading %s: %v", filename, err)
			return ""
		}
		return text
	default:
		return ""
	}
}
