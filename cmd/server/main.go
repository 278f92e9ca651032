package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"quizdeck/internal/api"
	"quizdeck/internal/config"
	"quizdeck/internal/db"
	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	pdfService := services.NewPDFService()
	userService := services.NewUserService(conn)
	documentService := services.NewDocumentService(conn, pdfService, cfg.UploadDir)
	flashcardService := services.NewFlashcardService(conn)
	quizService := services.NewQuizService(conn)
	aiService := services.NewAIService(
		cfg.OpenAIKey,
		cfg.OpenAIModel,
		cfg.OpenAIEndpoint,
		cfg.GenerationTimeout,
		logger,
	)
	generationService := services.NewGenerationService(conn, aiService, flashcardService)
	exportService := services.NewExportService()
	sessions := session.NewManager()

	server := api.NewServer(
		logger,
		sessions,
		userService,
		documentService,
		flashcardService,
		quizService,
		generationService,
		exportService,
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("listening", zap.String("port", port))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
