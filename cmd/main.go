package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"ai-call-bridge-service/internal/app"
	"ai-call-bridge-service/internal/bridge"
	"ai-call-bridge-service/internal/config"
	"ai-call-bridge-service/internal/directory"
	engineopenai "ai-call-bridge-service/internal/engine/openai"
	"ai-call-bridge-service/internal/events"
	httpapi "ai-call-bridge-service/internal/http"
	"ai-call-bridge-service/internal/knowledge"
	"ai-call-bridge-service/internal/observability"
	"ai-call-bridge-service/internal/session"
	"ai-call-bridge-service/internal/telephony"
	"ai-call-bridge-service/internal/token"
	"ai-call-bridge-service/internal/tools"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("application start failed")
	}
	defer application.Shutdown()

	if cfg.Engine.APIKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is required")
	}
	if cfg.Knowledge.PostgresURL == "" {
		log.Fatal().Msg("KNOWLEDGE_DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Knowledge.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	// Kafka publisher doubles as the call record store; downstream
	// consumers own persistence.
	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicLifecycle:   cfg.Kafka.TopicCalls,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		Principal:        cfg.Kafka.Principal,
	})
	defer publisher.Close()

	searcher := knowledge.NewSearcher(
		knowledge.NewOpenAIEmbedder(cfg.Engine.APIKey, cfg.Knowledge.EmbeddingModel),
		knowledge.NewPostgresIndex(pool),
		knowledge.Config{
			TopK:                 cfg.Knowledge.TopK,
			MinSimilarity:        cfg.Knowledge.MinSimilarity,
			ContextMinSimilarity: cfg.Knowledge.ContextMinSim,
			HighConfidence:       cfg.Knowledge.HighConfidence,
			TextSimilarity:       cfg.Knowledge.TextSimilarity,
			EmbedCacheTTL:        cfg.Knowledge.EmbedCacheTTL,
		})

	registry := session.NewRegistry(cfg.Session.MaxAge, cfg.Session.SweepInterval)
	registry.Start()
	defer registry.Stop()

	codec := token.NewCodec(cfg.Token.Secret, cfg.Token.TTL)

	var redirector telephony.Redirector
	if cfg.Telephony.AccountSID != "" && cfg.Telephony.AuthToken != "" {
		redirector = telephony.NewRESTRedirector(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.APIBaseURL)
	}

	bridgeHandler := bridge.NewHandler(bridge.Settings{
		Temperature:       cfg.Engine.Temperature,
		VADThreshold:      cfg.Engine.VADThreshold,
		PrefixPaddingMs:   cfg.Engine.PrefixPaddingMs,
		SilenceDurationMs: cfg.Engine.SilenceDurationMs,
		GreetingFirst:     cfg.Engine.GreetingFirst,
		TranscribeModel:   cfg.Engine.TranscribeModel,
		DebounceInterval:  cfg.Engine.DebounceInterval,
		RetrievalTimeout:  cfg.Engine.RetrievalTimeout,
	},
		codec,
		registry,
		engineopenai.NewDialer(cfg.Engine.APIKey, cfg.Engine.Model, cfg.Engine.URL),
		tools.NewWebhookRouter(tools.Config{
			WebhookURL:         cfg.Tools.WebhookURL,
			CalendarWebhookURL: cfg.Tools.CalendarWebhookURL,
			SigningSecret:      cfg.Tools.SigningSecret,
			Timeout:            cfg.Tools.Timeout,
		}),
		redirector,
	)

	router := httpapi.NewRouter(application, httpapi.Services{
		Codec:     codec,
		Registry:  registry,
		Directory: directory.NewPostgresDirectory(pool),
		SessionDeps: session.Dependencies{
			Store:         publisher,
			Summarizer:    session.NewOpenAISummarizer(cfg.Engine.APIKey),
			Searcher:      searcher,
			DefaultVoice:  cfg.Engine.DefaultVoice,
			ContextWindow: cfg.Session.ContextWindow,
			DedupeWindow:  cfg.Session.DedupeWindow,
		},
		Bridge:           bridgeHandler,
		PublicHost:       cfg.Service.PublicHost,
		WebhookAuthToken: cfg.Telephony.AuthToken,
	})

	metricsServer := observability.NewServer(":" + cfg.Observability.Port)
	metricsServer.Start()

	// No read/write timeouts: media stream sockets stay open for the
	// length of a phone call.
	server := &http.Server{
		Addr:        ":" + cfg.Service.HTTPPort,
		Handler:     router,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Call bridge service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down call bridge service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics shutdown failed")
	}
}
