package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the NexNote backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Pinecone  PineconeConfig  `mapstructure:"pinecone"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address       string   `mapstructure:"address"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
	MaxUploadSize int64    `mapstructure:"max_upload_size"`
}

// SessionConfig contains conversation session settings.
type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings. An empty host selects the
// in-memory session store.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// OllamaConfig contains settings for the local Ollama daemon.
type OllamaConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Options        OllamaOptions `mapstructure:"options"`
}

// OllamaOptions are generation tuning knobs passed through to the daemon.
// They shape latency and hardware utilisation, not answer semantics.
type OllamaOptions struct {
	NumPredict    int     `mapstructure:"num_predict" json:"num_predict"`
	Temperature   float64 `mapstructure:"temperature" json:"temperature"`
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	TopP          float64 `mapstructure:"top_p" json:"top_p"`
	NumCtx        int     `mapstructure:"num_ctx" json:"num_ctx"`
	RepeatPenalty float64 `mapstructure:"repeat_penalty" json:"repeat_penalty"`
	NumGPU        int     `mapstructure:"num_gpu" json:"num_gpu"`
	NumThread     int     `mapstructure:"num_thread" json:"num_thread"`
	UseMmap       bool    `mapstructure:"use_mmap" json:"use_mmap"`
	UseMlock      bool    `mapstructure:"use_mlock" json:"use_mlock"`
}

// PineconeConfig contains vector index settings. An empty API key selects the
// in-memory knowledge store.
type PineconeConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	IndexName string        `mapstructure:"index_name"`
	Dimension int           `mapstructure:"dimension"`
	Cloud     string        `mapstructure:"cloud"`
	Region    string        `mapstructure:"region"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig contains chunking and search parameters.
type RetrievalConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	TopK         int `mapstructure:"top_k"`
}

// StorageConfig contains filesystem paths for persisted state.
type StorageConfig struct {
	ChatDir     string `mapstructure:"chat_dir"`
	ProgressDir string `mapstructure:"progress_dir"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	return nil
}

func (o OllamaConfig) Validate() error {
	if strings.TrimSpace(o.BaseURL) == "" {
		return fmt.Errorf("ollama.base_url required")
	}
	if strings.TrimSpace(o.ChatModel) == "" {
		return fmt.Errorf("ollama.chat_model required")
	}
	if strings.TrimSpace(o.EmbeddingModel) == "" {
		return fmt.Errorf("ollama.embedding_model required")
	}
	return nil
}

func (p PineconeConfig) Validate() error {
	if p.Dimension <= 0 {
		return fmt.Errorf("pinecone.dimension must be positive")
	}
	if p.APIKey != "" && strings.TrimSpace(p.IndexName) == "" {
		return fmt.Errorf("pinecone.index_name required when api_key is set")
	}
	return nil
}

func (r RetrievalConfig) Validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must satisfy 0 <= overlap < chunk_size")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	return nil
}

// LoadConfig loads config from file, falling back to defaults plus NEXNOTE_*
// environment variables when no config file is present.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("NEXNOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Ollama.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Pinecone.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Retrieval.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.max_upload_size", int64(32<<20))
	v.SetDefault("session.cookie_name", "nexnote_session")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.redis.port", "6379")
	v.SetDefault("session.redis.timeout", 5*time.Second)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.chat_model", "deepseek-r1:1.5b")
	v.SetDefault("ollama.embedding_model", "nomic-embed-text")
	v.SetDefault("ollama.timeout", 2*time.Minute)
	v.SetDefault("ollama.options.num_predict", 1024)
	v.SetDefault("ollama.options.temperature", 0.7)
	v.SetDefault("ollama.options.top_k", 40)
	v.SetDefault("ollama.options.top_p", 0.9)
	v.SetDefault("ollama.options.num_ctx", 2048)
	v.SetDefault("ollama.options.repeat_penalty", 1.1)
	v.SetDefault("ollama.options.num_gpu", -1)
	v.SetDefault("ollama.options.num_thread", 8)
	v.SetDefault("ollama.options.use_mmap", true)
	v.SetDefault("ollama.options.use_mlock", false)
	v.SetDefault("pinecone.index_name", "nexnote-notes")
	v.SetDefault("pinecone.dimension", 768)
	v.SetDefault("pinecone.cloud", "aws")
	v.SetDefault("pinecone.region", "us-east-1")
	v.SetDefault("pinecone.timeout", 30*time.Second)
	v.SetDefault("retrieval.chunk_size", 500)
	v.SetDefault("retrieval.chunk_overlap", 50)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("storage.chat_dir", "chat_history")
	v.SetDefault("storage.progress_dir", "study_progress")
}
