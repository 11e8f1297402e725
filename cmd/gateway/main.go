// Command gateway runs the real-time voice-assistant WebSocket gateway,
// replacing the teacher's cmd/agent local-mic CLI loop with an HTTP server
// exposing /ws/chat, /api/sessions, and /metrics.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vanta-voice/gateway/internal/cache"
	"github.com/vanta-voice/gateway/internal/config"
	"github.com/vanta-voice/gateway/internal/gatewayhttp"
	"github.com/vanta-voice/gateway/internal/history"
	"github.com/vanta-voice/gateway/internal/logging"
	"github.com/vanta-voice/gateway/internal/metrics"
	"github.com/vanta-voice/gateway/internal/orchestrator"
	"github.com/vanta-voice/gateway/internal/providers"
	llmProvider "github.com/vanta-voice/gateway/internal/providers/llm"
	sttProvider "github.com/vanta-voice/gateway/internal/providers/stt"
	ttsProvider "github.com/vanta-voice/gateway/internal/providers/tts"
	"github.com/vanta-voice/gateway/internal/router"
	"github.com/vanta-voice/gateway/internal/search"
	"github.com/vanta-voice/gateway/internal/sessions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("gateway: config: %v", err)
	}

	logger, err := logging.New(cfg.LogFilePath)
	if err != nil {
		log.Fatalf("gateway: logging: %v", err)
	}
	logger.Info("starting gateway", "port", cfg.Port)

	cacheStore, historyStore := buildStores(cfg, logger)
	sessionStore := buildSessionStore(cfg, logger)

	aggregates := metrics.NewAggregates(prometheus.DefaultRegisterer)
	registry := orchestrator.NewRegistry()

	depsFactory := func() orchestrator.Deps {
		return orchestrator.Deps{
			Router:   buildRouter(cfg, cacheStore, historyStore),
			STT:      buildSTT(cfg),
			TTS:      buildTTS(cfg),
			History:  historyStore,
			Sessions: sessionStore,
			Metrics:  metrics.NewTracker(),
			Logger:   logger,
			Registry: registry,
		}
	}

	r := mux.NewRouter()
	gatewayhttp.NewHandler(depsFactory, registry).Register(r)
	if sessionStore != nil {
		sessions.NewHandlers(sessionStore).Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	go reportActiveSessions(aggregates, registry)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses must not be cut off
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

// reportActiveSessions periodically mirrors the device registry's size into
// the active_sessions gauge; a period this coarse is fine since it only
// feeds an operator dashboard, not the request path.
func reportActiveSessions(aggregates *metrics.Aggregates, registry *orchestrator.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		aggregates.ActiveSessions.Set(float64(registry.Len()))
	}
}

func buildStores(cfg *config.Config, logger logging.Logger) (cache.Store, history.Store) {
	if cfg.RedisURL == "" {
		logger.Warn("no REDIS_URL configured, falling back to in-memory cache/history")
		return cache.NewMemStore(), history.NewMemStore()
	}
	cacheStore, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis cache unavailable, falling back to in-memory", "error", err)
		return cache.NewMemStore(), history.NewMemStore()
	}
	historyStore, err := history.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis history unavailable, falling back to in-memory", "error", err)
		return cacheStore, history.NewMemStore()
	}
	return cacheStore, historyStore
}

func buildSessionStore(cfg *config.Config, logger logging.Logger) sessions.Store {
	if cfg.PostgresURL == "" {
		logger.Warn("no POSTGRES_URL configured, session history API will be unavailable")
		return nil
	}
	store, err := sessions.NewPGStore(context.Background(), cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		return nil
	}
	return store
}

func buildRouter(cfg *config.Config, cacheStore cache.Store, historyStore history.Store) *router.Router {
	primary := llmProvider.NewGroqLLM(cfg.GroqAPIKey, "")

	// original_source's production fallback is Gemini, but the teacher
	// shipped four interchangeable LLMProvider adapters; honor whichever
	// fallback key an operator actually configured, preferring Gemini.
	var fallback providers.LLMProvider
	switch {
	case cfg.GoogleAPIKey != "":
		fallback = llmProvider.NewGoogleLLM(cfg.GoogleAPIKey, "")
	case cfg.AnthropicAPIKey != "":
		fallback = llmProvider.NewAnthropicLLM(cfg.AnthropicAPIKey, "")
	case cfg.OpenAIAPIKey != "":
		fallback = llmProvider.NewOpenAILLM(cfg.OpenAIAPIKey, "")
	}

	var searchClient *search.Client
	if cfg.TavilyAPIKey != "" {
		searchClient = search.NewClient(cfg.TavilyAPIKey)
	}

	return router.New(primary, fallback, cacheStore, historyStore, searchClient)
}

func buildSTT(cfg *config.Config) providers.StreamingSTTProvider {
	primary := sttProvider.NewDeepgramStreamingSTT(cfg.DeepgramAPIKey)

	var secondary providers.STTProvider
	switch {
	case cfg.GroqAPIKey != "":
		secondary = sttProvider.NewGroqSTT(cfg.GroqAPIKey, "")
	case cfg.OpenAIAPIKey != "":
		secondary = sttProvider.NewOpenAISTT(cfg.OpenAIAPIKey, "")
	default:
		secondary = sttProvider.NewDeepgramBatchSTT(cfg.DeepgramAPIKey)
	}
	return sttProvider.NewFallback(primary, secondary)
}

func buildTTS(cfg *config.Config) providers.TTSProvider {
	var primary providers.TTSProvider = ttsProvider.NewCartesiaTTS(cfg.CartesiaAPIKey)
	if cfg.CartesiaAPIKey == "" {
		// config.validate accepts a Lokutor key in place of a Cartesia one.
		primary = ttsProvider.NewLokutorTTS(cfg.LokutorAPIKey)
	}
	secondary := ttsProvider.NewDeepgramSpeakTTS(cfg.DeepgramAPIKey)
	return ttsProvider.NewFallback(primary, secondary)
}
