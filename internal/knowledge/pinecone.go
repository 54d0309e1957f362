package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nexnote/nexnote/config"
)

const pineconeControlURL = "https://api.pinecone.io"

// PineconeStore is a REST client to a serverless Pinecone index. The control
// plane manages index lifecycle; data-plane calls go to the index host
// resolved during EnsureIndex.
type PineconeStore struct {
	apiKey     string
	indexName  string
	dimension  int
	cloud      string
	region     string
	controlURL string
	httpClient *http.Client
	logger     *log.Logger

	// dataURL is written by index lifecycle calls and read by every
	// data-plane call; one store instance serves concurrent requests.
	mu      sync.Mutex
	dataURL string

	pollInterval time.Duration
	pollAttempts int
}

func NewPineconeStore(cfg config.PineconeConfig, logger *log.Logger) *PineconeStore {
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PineconeStore{
		apiKey:       cfg.APIKey,
		indexName:    cfg.IndexName,
		dimension:    cfg.Dimension,
		cloud:        cfg.Cloud,
		region:       cfg.Region,
		controlURL:   pineconeControlURL,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		pollInterval: 2 * time.Second,
		pollAttempts: 30,
	}
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// EnsureIndex makes the configured index available at the configured
// dimension. A dimension mismatch destroys and recreates the index; losing
// the stored vectors is the accepted cost.
func (s *PineconeStore) EnsureIndex(ctx context.Context) error {
	desc, found, err := s.describeIndex(ctx)
	if err != nil {
		return err
	}

	if found && desc.Dimension != s.dimension {
		s.logger.Printf("index %q has dimension %d, need %d: recreating", s.indexName, desc.Dimension, s.dimension)
		if err := s.deleteIndex(ctx); err != nil {
			return err
		}
		found = false
	}

	if !found {
		if err := s.createIndex(ctx); err != nil {
			return err
		}
		desc, _, err = s.waitReady(ctx)
		if err != nil {
			return err
		}
	}

	s.setDataURL(hostURL(desc.Host))
	return nil
}

func (s *PineconeStore) setDataURL(url string) {
	s.mu.Lock()
	s.dataURL = url
	s.mu.Unlock()
}

// hostURL normalises the index host reported by the control plane, which
// omits the scheme.
func hostURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// Upsert inserts or replaces records by ID in batches of at most
// UpsertBatchSize.
func (s *PineconeStore) Upsert(ctx context.Context, records []VectorRecord) error {
	base, err := s.endpoint(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		body := map[string]any{"vectors": records[start:end]}
		if err := s.do(ctx, http.MethodPost, base+"/vectors/upsert", body, nil); err != nil {
			return fmt.Errorf("upserting batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Search returns at most topK matches ordered descending by score.
func (s *PineconeStore) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	base, err := s.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	var resp struct {
		Matches []Match `json:"matches"`
	}
	if err := s.do(ctx, http.MethodPost, base+"/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

func (s *PineconeStore) Stats(ctx context.Context) (Stats, error) {
	base, err := s.endpoint(ctx)
	if err != nil {
		return Stats{}, err
	}
	var resp struct {
		TotalVectorCount int `json:"totalVectorCount"`
		Dimension        int `json:"dimension"`
	}
	if err := s.do(ctx, http.MethodPost, base+"/describe_index_stats", map[string]any{}, &resp); err != nil {
		return Stats{}, err
	}
	return Stats{TotalVectorCount: resp.TotalVectorCount, Dimension: resp.Dimension}, nil
}

// Clear destroys and recreates the index from scratch.
func (s *PineconeStore) Clear(ctx context.Context) error {
	if err := s.deleteIndex(ctx); err != nil {
		return err
	}
	if err := s.createIndex(ctx); err != nil {
		return err
	}
	desc, _, err := s.waitReady(ctx)
	if err != nil {
		return err
	}
	s.setDataURL(hostURL(desc.Host))
	s.logger.Printf("knowledge base cleared: fresh index %q", s.indexName)
	return nil
}

// UploadedFilesApprox tallies filenames from a broad zero-vector query. See
// Store for the accuracy caveats.
func (s *PineconeStore) UploadedFilesApprox(ctx context.Context) (map[string]int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.TotalVectorCount == 0 {
		return map[string]int{}, nil
	}

	topK := stats.TotalVectorCount
	if topK > ListCap {
		topK = ListCap
	}
	matches, err := s.Search(ctx, make([]float32, s.dimension), topK)
	if err != nil {
		return nil, err
	}

	files := make(map[string]int)
	for _, m := range matches {
		name := m.Metadata.Filename
		if name == "" {
			name = "Unknown"
		}
		files[name]++
	}
	return files, nil
}

// endpoint returns the data-plane base URL, resolving the index host first
// when it is not yet known.
func (s *PineconeStore) endpoint(ctx context.Context) (string, error) {
	s.mu.Lock()
	url := s.dataURL
	s.mu.Unlock()
	if url != "" {
		return url, nil
	}
	if err := s.EnsureIndex(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	url = s.dataURL
	s.mu.Unlock()
	return url, nil
}

func (s *PineconeStore) describeIndex(ctx context.Context) (indexDescription, bool, error) {
	var desc indexDescription
	err := s.do(ctx, http.MethodGet, s.controlURL+"/indexes/"+s.indexName, nil, &desc)
	if err != nil {
		if isNotFound(err) {
			return indexDescription{}, false, nil
		}
		return indexDescription{}, false, err
	}
	return desc, true, nil
}

func (s *PineconeStore) createIndex(ctx context.Context) error {
	body := map[string]any{
		"name":      s.indexName,
		"dimension": s.dimension,
		"metric":    "cosine",
		"spec": map[string]any{
			"serverless": map[string]any{
				"cloud":  s.cloud,
				"region": s.region,
			},
		},
	}
	if err := s.do(ctx, http.MethodPost, s.controlURL+"/indexes", body, nil); err != nil {
		return fmt.Errorf("creating index %q: %w", s.indexName, err)
	}
	s.logger.Printf("created index %q with dimension %d", s.indexName, s.dimension)
	return nil
}

func (s *PineconeStore) deleteIndex(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, s.controlURL+"/indexes/"+s.indexName, nil, nil); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting index %q: %w", s.indexName, err)
	}
	s.setDataURL("")
	return nil
}

// waitReady polls the control plane until the index reports ready.
func (s *PineconeStore) waitReady(ctx context.Context) (indexDescription, bool, error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		desc, found, err := s.describeIndex(ctx)
		if err != nil {
			return indexDescription{}, false, err
		}
		if found && desc.Status.Ready {
			return desc, true, nil
		}
		select {
		case <-ctx.Done():
			return indexDescription{}, false, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return indexDescription{}, false, fmt.Errorf("index %q not ready after %d attempts", s.indexName, s.pollAttempts)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("pinecone returned status %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

func (s *PineconeStore) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("X-Pinecone-API-Version", "2025-01")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(buf.String())}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
