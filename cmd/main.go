package main

import (
	"context"
	stdErrors "errors"
	"final-draft/auth"
	"final-draft/infrastructure/grpc/server"
	"final-draft/infrastructure/httpapi"
	"final-draft/infrastructure/ws"
	"final-draft/moderation"
	"final-draft/observability"
	"final-draft/repositories"
	"final-draft/runtime"
	"final-draft/runtime/workers"
	"final-draft/services"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	userRepository, err := repositories.NewUserRepository(db)
	if err != nil {
		return fmt.Errorf("user sequence: %w", err)
	}
	// Runs before db.Close
	defer func() { _ = userRepository.Release() }()
	sessionRepository := repositories.NewSessionRepository(db, log)
	roomRepository := repositories.NewRoomRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)

	// 4. Chat core
	censor, err := newCensor(config, log)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenIssuer(config.SessionSecret)
	resolver := auth.NewSessionResolver(tokens, sessionRepository, userRepository, config.IdentityTimeout, log)
	broadcaster := runtime.NewRegistry(log, metrics)
	chatService := services.NewChatService(roomRepository, messageRepository, userRepository,
		broadcaster, censor, metrics, log, config.MaxContentLength)
	authService := services.NewAuthService(userRepository, sessionRepository, tokens, config.SessionDuration, log)

	gateway := ws.NewGateway(resolver, chatService, ws.Config{
		BufferSize:     config.ConnectionBufferSize,
		WriteTimeout:   config.WriteTimeout,
		PingInterval:   config.PingInterval,
		MaxFrameBytes:  config.MaxFrameBytes(),
		AllowedOrigins: config.AllowedOrigins(),
	}, metrics, log)

	router := httpapi.NewRouter(httpapi.NewAPI(authService, chatService, log), resolver, httpapi.RouterConfig{
		AllowedOrigins: config.AllowedOrigins(),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Gateway:        gateway,
		RoomVar:        ws.RoomVar,
	})

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewSessionJanitor(sessionRepository, config.SessionCleanupInterval, log),
		workers.NewBadgerGC(db, config.GCInterval, log),
		workers.NewProcessMonitor(metrics, config.MetricInterval, log),
	)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 7. Servers
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	health := server.NewHealthServer(log)

	errChan := make(chan error, 2)
	go func() {
		if err := health.Serve(grpcListener); err != nil {
			errChan <- err
		}
	}()
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	health.SetServing(true)

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Server failed, shutting down", "error", err)
	}

	// 9. Final Cleanup: stop accepting, say goodbye to live connections, then drain
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	health.SetServing(false)
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("HTTP server shutdown incomplete", "error", shutdownErr)
	}
	if shutdownErr := gateway.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("WebSocket sessions still open", "error", shutdownErr)
	}
	broadcaster.CloseAll()
	health.Stop(shutdownCtx)
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return err
}

// newCensor returns nil, meaning no censoring, when CENSORED_WORDS is unset.
func newCensor(config Config, log *slog.Logger) (services.Censor, error) {
	if config.CensoredWords == "" {
		return nil, nil
	}
	char, err := config.CharacterRune()
	if err != nil {
		return nil, err
	}
	data, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredWords)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, char, log)
	if err != nil {
		return nil, fmt.Errorf("moderator: %w", err)
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderator, nil
}
