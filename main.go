package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tgvault/tgvault/internal/config"
	"github.com/tgvault/tgvault/internal/database"
	"github.com/tgvault/tgvault/internal/handlers"
	mw "github.com/tgvault/tgvault/internal/middleware"
	"github.com/tgvault/tgvault/internal/services"
	"github.com/tgvault/tgvault/internal/spool"
	"github.com/tgvault/tgvault/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := database.Initialize(cfg.DatabaseURL, cfg.DBPath); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()

	spooler, err := spool.New(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize spool directory")
	}

	tgClient, err := telegram.Open(cfg, spooler, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open telegram transport")
	}
	defer tgClient.Close()
	log.Info().Str("mode", tgClient.Mode()).Str("chat", cfg.ChatID).Msg("telegram transport selected")

	fileService := services.NewFileService(tgClient, spooler, cfg.BotUploadLimit, log.Logger)
	apiHandler := handlers.NewAPIHandler(fileService, tgClient, cfg.UploadTimeout, log.Logger)

	startSweeper(spooler, cfg.UploadTimeout)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))

	allowedOrigins := []string{"*"}
	if cfg.BaseURL != "" {
		allowedOrigins = []string{cfg.BaseURL}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: cfg.BaseURL != "",
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.APIAuth(mw.AuthConfig{
			Password:     cfg.APIPassword,
			PasswordHash: cfg.APIPasswordHash,
		}))

		r.Get("/health", apiHandler.Health)
		r.Post("/upload", apiHandler.Upload)
		r.Get("/files", apiHandler.List)
		r.Get("/download/{fileID}", apiHandler.Download)
		r.Get("/diagnostics/resolve_chat", apiHandler.ResolveChat)
	})

	// Unauthenticated liveness probe.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: cfg.UploadTimeout + time.Minute,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tgClient.Close(); err != nil {
		log.Error().Err(err).Msg("telegram transport shutdown failed")
	}
}

// startSweeper periodically removes spool files orphaned by crashes. Anything
// older than the global upload budget cannot still be in flight.
func startSweeper(spooler *spool.Controller, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for range ticker.C {
			if n, err := spooler.Sweep(maxAge); err != nil {
				log.Warn().Err(err).Msg("spool sweep failed")
			} else if n > 0 {
				log.Info().Int("removed", n).Msg("spool sweep completed")
			}
		}
	}()
}
