package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexnote/nexnote/config"
	"github.com/nexnote/nexnote/models"
)

// Client is a minimal REST client to a local Ollama daemon, covering chat
// completion (single-shot and streaming) and embedding generation.
type Client struct {
	baseURL        string
	chatModel      string
	embeddingModel string
	options        config.OllamaOptions
	httpClient     *http.Client
}

func NewClient(cfg config.OllamaConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		options:        cfg.Options,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// ChatModel returns the configured completion model name.
func (c *Client) ChatModel() string { return c.chatModel }

type chatRequest struct {
	Model    string               `json:"model"`
	Messages []models.Message     `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  config.OllamaOptions `json:"options"`
}

type chatResponse struct {
	Message models.Message `json:"message"`
	Done    bool           `json:"done"`
}

// Chat sends the message sequence to the chat model and returns the generated
// text.
func (c *Client) Chat(ctx context.Context, messages []models.Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.chatModel,
		Messages: messages,
		Options:  c.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama chat returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	return out.Message.Content, nil
}

// ChatStream sends the message sequence with streaming enabled and invokes fn
// for every generated fragment in order. Each call re-invokes the model from
// scratch; the stream is finite and not restartable.
func (c *Client) ChatStream(ctx context.Context, messages []models.Message, fn func(fragment string) error) error {
	body, err := json.Marshal(chatRequest{
		Model:    c.chatModel,
		Messages: messages,
		Stream:   true,
		Options:  c.options,
	})
	if err != nil {
		return fmt.Errorf("marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama chat returned status %d", resp.StatusCode)
	}

	// The daemon streams one JSON object per line.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("parsing stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed maps text to a vector using the configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.embeddingModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshalling embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embeddings returned status %d", resp.StatusCode)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return out.Embedding, nil
}
