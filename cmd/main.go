package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"nestchat/auth"
	"nestchat/contract"
	"nestchat/domain/event"
	nesthttp "nestchat/infrastructure/http"
	"nestchat/listings"
	"nestchat/logs"
	"nestchat/media"
	"nestchat/moderation"
	"nestchat/observability"
	"nestchat/presence"
	"nestchat/projection"
	"nestchat/ratelimit"
	"nestchat/repositories"
	"nestchat/runtime"
	"nestchat/runtime/workers"
	"nestchat/services"
	"nestchat/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for HTTP and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	conversationRepository := repositories.NewConversationRepository(db, log)
	messageRepository, err := repositories.NewMessageRepository(db, log, config.PageSize)
	if err != nil {
		return fmt.Errorf("message repository setup failed: %w", err)
	}
	defer func() { _ = messageRepository.Close() }()
	messageIndex := repositories.NewMessageIndex(indexWriter, log)

	// 3. Domain collaborators
	words, err := moderation.LoadWordList()
	if err != nil {
		return fmt.Errorf("loading moderation wordlist: %w", err)
	}
	log.Info("Moderation wordlist loaded", "words", len(words.Words), "languages", words.Languages)
	moderator, err := moderation.NewModerator(words.Words, config.ModerationChar)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}

	locks := runtime.NewKeyedMutex()
	registry := runtime.NewRegistry()
	tracker := presence.NewTracker(log, config.PresenceTimeout)
	limiter := ratelimit.NewLimiter(log, config.RateLimitMax, config.RateLimitWindow)
	events := make(chan event.DomainEvent, config.BufferSize)

	listingClient := listings.NewClient(log, config.ListingBaseURL, config.ListingTimeout)

	conversationService := services.NewConversationService(log, conversationRepository, listingClient, locks, events)
	messageService := services.NewMessageService(log, conversationRepository, messageRepository, messageIndex, moderator, locks, events)
	presenceService := services.NewPresenceService(log, tracker, conversationRepository, events)
	views := projection.NewViews(conversationRepository, messageRepository, tracker)

	mediaStore, err := media.NewStore(log, config.MediaDir)
	if err != nil {
		return fmt.Errorf("media store setup failed: %w", err)
	}
	collector, err := observability.NewCollector()
	if err != nil {
		return fmt.Errorf("stats collector setup failed: %w", err)
	}

	// 4. Supervision: fanout + sweeper
	sup := workers.NewSupervisor(log, config.RestartInterval)
	permanentSinks := []contract.EventSink{sink.NewIndexSink(messageIndex, log)}
	sup.Add(
		workers.NewEventFanout(log, events, registry, permanentSinks, config.SinkTimeout),
		workers.NewSweeper(log, config.SweepInterval, config.RetentionWindow, config.SweepBatchSize, limiter, tracker),
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 6. HTTP Server Setup
	verifier := auth.NewVerifier(config.TokenSecret)
	server := nesthttp.NewServer(log, conversationService, messageService, presenceService,
		tracker, views, limiter, registry, verifier, mediaStore, collector, config.ConnectionBufferSize)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:        address,
		Handler:     server.Router(),
		ReadTimeout: 30 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
