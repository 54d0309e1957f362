package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/nexnote/nexnote/internal/chunker"
	"github.com/nexnote/nexnote/internal/extract"
	"github.com/nexnote/nexnote/internal/knowledge"
	"github.com/nexnote/nexnote/internal/metrics"
	"github.com/nexnote/nexnote/models"
)

// snippetLimit truncates source attribution text in responses.
const snippetLimit = 200

// fileTextTopK is how many matches a per-file text lookup retrieves before
// filtering by filename.
const fileTextTopK = 10

// Completer generates chat completions.
type Completer interface {
	ChatModel() string
	Chat(ctx context.Context, messages []models.Message) (string, error)
	ChatStream(ctx context.Context, messages []models.Message, fn func(fragment string) error) error
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Answer is a generated response with its retrieval attributions.
type Answer struct {
	Text    string
	Sources []models.Source
}

// UploadFile is one member of an upload batch.
type UploadFile struct {
	Filename string
	Data     []byte
}

// Service runs the retrieval-augmented pipeline: document ingestion on the
// write path, search + prompt assembly + generation on the read path. Each
// request executes sequentially; failures are contained per component so one
// bad document, one failed embedding, or an unavailable model never aborts a
// batch or crashes a response.
type Service struct {
	llm       Completer
	embedder  Embedder
	store     knowledge.Store
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	topK      int
	logger    *log.Logger
}

func NewService(llm Completer, embedder Embedder, store knowledge.Store, extractor *extract.Extractor, ch *chunker.Chunker, topK int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if topK <= 0 {
		topK = 3
	}
	return &Service{
		llm:       llm,
		embedder:  embedder,
		store:     store,
		extractor: extractor,
		chunker:   ch,
		topK:      topK,
		logger:    logger,
	}
}

// ProcessFiles ingests an upload batch: extract, chunk, embed, upsert. A file
// that extracts to nothing, or a chunk whose embedding fails, is skipped and
// the batch continues. The returned map records stored chunk counts per file.
func (s *Service) ProcessFiles(ctx context.Context, files []UploadFile) (map[string]int, error) {
	if err := s.store.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("initializing knowledge store: %w", err)
	}

	processed := make(map[string]int)
	for _, f := range files {
		count := s.processFile(ctx, f)
		processed[f.Filename] = count
		if count > 0 {
			metrics.DocumentsIngested.Inc()
		}
	}
	return processed, nil
}

func (s *Service) processFile(ctx context.Context, f UploadFile) int {
	text := s.extractor.Extract(f.Filename, f.Data)
	if text == "" {
		s.logger.Printf("nothing extracted from %s", f.Filename)
		return 0
	}

	chunks := s.chunker.Chunk(text)
	records := make([]knowledge.VectorRecord, 0, len(chunks))
	for idx, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			s.logger.Printf("embedding chunk %d of %s: %v", idx, f.Filename, err)
			metrics.EmbeddingFailures.Inc()
			continue
		}
		records = append(records, knowledge.VectorRecord{
			ID:     knowledge.RecordID(f.Filename, idx),
			Values: vector,
			Metadata: knowledge.Metadata{
				Filename:   f.Filename,
				ChunkIndex: idx,
				Text:       chunk,
			},
		})
	}

	if len(records) == 0 {
		return 0
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		s.logger.Printf("upserting %s: %v", f.Filename, err)
		return 0
	}
	metrics.ChunksEmbedded.Add(float64(len(records)))
	return len(records)
}

// Retrieve embeds the query and searches the knowledge store. Failures
// degrade to an empty match list so the chat flow proceeds without context.
func (s *Service) Retrieve(ctx context.Context, query string) []knowledge.Match {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Printf("embedding query: %v", err)
		metrics.SearchFailures.Inc()
		return nil
	}
	matches, err := s.store.Search(ctx, vector, s.topK)
	if err != nil {
		s.logger.Printf("searching knowledge base: %v", err)
		metrics.SearchFailures.Inc()
		return nil
	}
	return matches
}

// Answer runs the read path: retrieve context, assemble the prompt with
// bounded history, generate. A generation failure becomes a diagnostic answer
// string rather than an error, so the chat flow never crashes on model
// unavailability.
func (s *Service) Answer(ctx context.Context, query string, history []models.Message) Answer {
	matches := s.Retrieve(ctx, query)
	messages := BuildMessages(query, matches, history)

	text, err := s.llm.Chat(ctx, messages)
	if err != nil {
		metrics.GenerationFailures.Inc()
		text = s.diagnostic(err)
	}
	return Answer{Text: text, Sources: sources(matches)}
}

// AnswerStream is the streaming variant of Answer. On failure it emits one
// final diagnostic fragment through fn instead of returning an error.
func (s *Service) AnswerStream(ctx context.Context, query string, history []models.Message, fn func(fragment string) error) []models.Source {
	matches := s.Retrieve(ctx, query)
	messages := BuildMessages(query, matches, history)

	if err := s.llm.ChatStream(ctx, messages, fn); err != nil {
		metrics.GenerationFailures.Inc()
		_ = fn(s.streamDiagnostic(err))
	}
	return sources(matches)
}

// FileText reassembles a file's stored text by searching for its chunks and
// filtering matches by filename. Returns false when the knowledge base holds
// nothing for that file.
func (s *Service) FileText(ctx context.Context, filename string) (string, bool) {
	vector, err := s.embedder.Embed(ctx, "content from "+filename)
	if err != nil {
		s.logger.Printf("embedding file lookup for %s: %v", filename, err)
		return "", false
	}
	matches, err := s.store.Search(ctx, vector, fileTextTopK)
	if err != nil {
		s.logger.Printf("searching for %s: %v", filename, err)
		return "", false
	}

	var parts []string
	for _, m := range matches {
		if m.Metadata.Filename == filename && m.Metadata.Text != "" {
			parts = append(parts, m.Metadata.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

func (s *Service) diagnostic(err error) string {
	model := s.llm.ChatModel()
	return fmt.Sprintf("❌ **Error**: %v\n\n**Troubleshooting:**\n- Make sure Ollama is running: `ollama serve`\n- Check if model '%s' is available: `ollama list`\n- Try pulling the model: `ollama pull %s`", err, model, model)
}

func (s *Service) streamDiagnostic(err error) string {
	model := s.llm.ChatModel()
	return fmt.Sprintf("❌ **Error**: %v\n\n**Troubleshooting:**\n- Make sure Ollama is running\n- Check if model is available\n- Try: `ollama pull %s`", err, model)
}

func sources(matches []knowledge.Match) []models.Source {
	out := make([]models.Source, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.Source{
			Filename: m.Metadata.Filename,
			Score:    m.Score,
			Text:     truncate(m.Metadata.Text, snippetLimit),
		})
	}
	return out
}
