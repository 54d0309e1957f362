package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexnote/nexnote/config"
	"github.com/nexnote/nexnote/internal/assistant"
	"github.com/nexnote/nexnote/internal/chatlog"
	"github.com/nexnote/nexnote/internal/chunker"
	"github.com/nexnote/nexnote/internal/extract"
	"github.com/nexnote/nexnote/internal/knowledge"
	"github.com/nexnote/nexnote/internal/metrics"
	"github.com/nexnote/nexnote/internal/ollama"
	"github.com/nexnote/nexnote/internal/session"
	"github.com/nexnote/nexnote/internal/study"
)

// Run wires the full pipeline from config and serves the API until the
// listener fails. Store selection is config-driven: a Pinecone API key picks
// the hosted index, a Redis host picks the Redis session store; both fall
// back to in-memory implementations otherwise.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	origins := cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))
	e.Use(requestMetrics)

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Shared dependencies (top-level DI)
	llm := ollama.NewClient(cfg.Ollama)

	var store knowledge.Store
	if cfg.Pinecone.APIKey != "" {
		store = knowledge.NewPineconeStore(cfg.Pinecone, log.New(log.Writer(), "[PINECONE] ", log.LstdFlags))
	} else {
		log.Printf("pinecone api key not set, using in-memory knowledge store")
		store = knowledge.NewMemoryStore(cfg.Pinecone.Dimension)
	}

	ch, err := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunker: %w", err)
	}
	extractor := extract.New(log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags))
	svc := assistant.NewService(llm, llm, store, extractor, ch, cfg.Retrieval.TopK,
		log.New(log.Writer(), "[ASSISTANT] ", log.LstdFlags))

	chats, err := chatlog.NewRepository(cfg.Storage.ChatDir)
	if err != nil {
		return fmt.Errorf("chat history dir: %w", err)
	}
	progress, err := study.NewProgressRepository(cfg.Storage.ProgressDir)
	if err != nil {
		return fmt.Errorf("study progress dir: %w", err)
	}
	tools := study.NewService(llm, log.New(log.Writer(), "[STUDY] ", log.LstdFlags))

	var sessStore session.Store
	if cfg.Session.Redis.Host != "" {
		rdb, err := session.Conn(context.Background(), cfg.Session.Redis)
		if err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Session.Redis.Host, cfg.Session.Redis.Port, err)
		}
		sessStore = session.NewRedisStore(rdb, cfg.Session.TTL)
	} else {
		log.Printf("redis host not set, using in-memory session store")
		sessStore = session.NewMemoryStore(cfg.Session.TTL)
	}
	sessions := &Sessions{Store: sessStore, CookieName: cfg.Session.CookieName, TTL: cfg.Session.TTL}

	api := e.Group("/api")
	chatHandler := &ChatHandler{
		Assistant: svc,
		Chats:     chats,
		Sessions:  sessions,
		Logger:    log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	chatHandler.Register(api)

	filesHandler := &FilesHandler{
		Ingestor:      svc,
		Store:         store,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        log.New(log.Writer(), "[FILES] ", log.LstdFlags),
	}
	filesHandler.Register(api)

	studyHandler := &StudyHandler{
		Assistant: svc,
		Tools:     tools,
		Progress:  progress,
	}
	studyHandler.Register(api)

	addr := cfg.Server.Address
	log.Printf("listening on %s", addr)
	e.Server.ReadHeaderTimeout = 10 * time.Second
	return e.Start(addr)
}

func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		route := c.Path()
		if route == "" {
			route = c.Request().URL.Path
		}
		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		return err
	}
}
