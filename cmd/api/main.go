// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/db"
	"github.com/daybook-ai/assistant-platform/internal/config"
	"github.com/daybook-ai/assistant-platform/internal/events"
	"github.com/daybook-ai/assistant-platform/internal/handler"
	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/internal/middleware"
	"github.com/daybook-ai/assistant-platform/internal/orchestrator"
	"github.com/daybook-ai/assistant-platform/internal/retrieval"
	"github.com/daybook-ai/assistant-platform/internal/router"
	"github.com/daybook-ai/assistant-platform/internal/store"
	"github.com/daybook-ai/assistant-platform/internal/tool"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
	"github.com/daybook-ai/assistant-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "assistant-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Run database migrations
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	// Connect to Postgres
	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to NATS
	natsClient, err := events.Connect(events.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	publisher := events.NewPublisher(natsClient)
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Chat model client
	chatClient, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		log.Error("failed to create chat client", zap.Error(err))
		os.Exit(1)
	}

	// Router client, Anthropic when configured, otherwise the chat client
	var routerClient llm.Client = chatClient
	if cfg.AnthropicAPIKey != "" {
		routerClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, routing via chat model", zap.Error(err))
			routerClient = chatClient
		}
	}

	embedder, err := llm.NewOpenAIEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
	if err != nil {
		log.Error("failed to create embedder", zap.Error(err))
		os.Exit(1)
	}

	// Stores
	conversations := store.NewConversationStore(pool, log)
	documents := store.NewDocumentStore(pool, log)

	// Retrieval pipeline
	retriever := retrieval.NewRetriever(embedder, documents, cfg.RetrievalTopK, log)
	assembler := retrieval.NewAssembler(documents, log)
	indexer := retrieval.NewIndexer(embedder, documents, log)

	// Tool registry
	descriptors := []tool.Descriptor{}
	calendarTool, err := tool.NewCalendarTool(ctx, cfg.GoogleCredentialsFile, cfg.GoogleTokenFile, log)
	if err != nil {
		log.Warn("calendar tool unavailable", zap.Error(err))
	} else {
		descriptors = append(descriptors, calendarTool.Descriptor())
	}
	registry := tool.NewRegistry(log, descriptors...)

	// Intent router
	intentRouter := router.New(routerClient, cfg.RouterModel, log)

	// Orchestrator
	orch := orchestrator.New(orchestrator.Config{
		ChatModel:       cfg.ChatModel,
		Temperature:     cfg.Temperature,
		MaxTokens:       cfg.MaxTokens,
		MaxToolRounds:   cfg.MaxToolRounds,
		RoutingEnabled:  cfg.RoutingEnabled,
		LLMCallTimeout:  cfg.LLMCallTimeout,
		ToolCallTimeout: cfg.ToolCallTimeout,
	}, chatClient, conversations, retriever, assembler, registry, intentRouter, publisher, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(pool, natsClient)
	conversationHandler := handler.NewConversationHandler(conversations, log)
	chatHandler := handler.NewChatHandler(orch, log)
	documentHandler := handler.NewDocumentHandler(documents, indexer, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", conversationHandler.Messages)
				r.Post("/chat", chatHandler.Chat)
			})
		})

		// Documents
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentHandler.Create)
			r.Get("/", documentHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", documentHandler.Get)
				r.Put("/", documentHandler.Update)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
