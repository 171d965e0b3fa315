// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command router starts the voice routing API server.
//
// The router turns a spoken or typed user query into a downstream API call:
//   - Transcribes uploaded audio (OpenAI Whisper endpoint)
//   - Fuzzy-matches the text against the API descriptor catalog (Elasticsearch)
//   - Extracts declared parameters with an LLM (Groq or OpenAI)
//   - Invokes the matched downstream endpoint and passes the result through
//
// Usage:
//
//	go run ./cmd/router
//	go run ./cmd/router -port 9090 -config router.yaml
//
// Required environment:
//
//	ELASTIC_URI=http://localhost:9200 ASYNC_API=http://localhost:8000 \
//	GROQ_API_KEY=... OPENAI_API_KEY=... go run ./cmd/router
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/api/v1/health
//
//	# Route a typed query
//	curl -X POST http://localhost:8080/api/v1/question_text \
//	  -H "Content-Type: application/json" \
//	  -d '{"text": "найди комедию"}'
//
//	# Route a voice query
//	curl -X POST http://localhost:8080/api/v1/question \
//	  -F "file=@query.wav"
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/voice-router/services/router"
	"github.com/AleutianAI/voice-router/services/router/catalog"
	"github.com/AleutianAI/voice-router/services/router/config"
	"github.com/AleutianAI/voice-router/services/router/intent"
	"github.com/AleutianAI/voice-router/services/router/providers"
	"github.com/AleutianAI/voice-router/services/router/retry"
	"github.com/AleutianAI/voice-router/services/router/transcribe"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	configPath := flag.String("config", "", "Path to an optional YAML config file")
	flag.Parse()

	// Logging level first so config loading is observable
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	settings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		settings.Port = *port
	}

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagator so trace context flows from inbound
	// headers through all handlers and outbound calls.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	handlers, err := buildHandlers(settings)
	if err != nil {
		slog.Error("Startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("voice-router"))
	if *debug {
		engine.Use(gin.Logger())
	}

	v1 := engine.Group("/api/v1")
	router.RegisterRoutes(v1, handlers)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down voice router server")
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", settings.Port)
	slog.Info("Starting voice router server",
		slog.String("address", addr),
		slog.String("provider", settings.Provider),
		slog.String("catalog_index", settings.CatalogIndex),
	)
	if err := engine.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildHandlers wires the full dependency graph from validated settings.
func buildHandlers(settings *config.Settings) (*router.Handlers, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{settings.ElasticURI},
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	retryCfg := retry.DefaultConfig()

	search, err := catalog.NewSearchClient(es, settings.CatalogIndex, retryCfg)
	if err != nil {
		return nil, err
	}
	store, err := catalog.NewStore(es, settings.CatalogIndex, retryCfg)
	if err != nil {
		return nil, err
	}

	resolver, err := intent.NewResolver(search)
	if err != nil {
		return nil, err
	}

	chatModel := settings.GroqModel
	apiKey := settings.GroqAPIKey
	if settings.Provider == providers.ProviderOpenAI {
		chatModel = settings.OpenAIModel
		apiKey = settings.OpenAIAPIKey
	}
	chat, err := providers.NewChatClient(providers.ProviderConfig{
		Provider: settings.Provider,
		Model:    chatModel,
		APIKey:   apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}
	retryingChat, err := providers.NewRetryingChatClient(chat, retryCfg)
	if err != nil {
		return nil, err
	}

	extractor, err := intent.NewExtractor(retryingChat, intent.DefaultExtractorConfig())
	if err != nil {
		return nil, err
	}

	invoker, err := intent.NewInvoker(settings.AsyncAPI, nil, retryCfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := intent.NewPipeline(resolver, extractor, invoker, settings.FallbackMessage)
	if err != nil {
		return nil, err
	}

	whisper, err := transcribe.NewWhisperClientWithConfig(
		settings.OpenAIAPIKey, settings.WhisperLanguage, "")
	if err != nil {
		return nil, fmt.Errorf("creating whisper client: %w", err)
	}

	return router.NewHandlers(pipeline, whisper, store, settings.UploadDir)
}
