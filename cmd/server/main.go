package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardforge-backend/internal/config"
	"cardforge-backend/internal/database"
	"cardforge-backend/internal/engine"
	"cardforge-backend/internal/handlers"
	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/repository"
	"cardforge-backend/internal/router"
	"cardforge-backend/internal/runpod"
	"cardforge-backend/internal/services"
	"cardforge-backend/internal/websocket"
	"cardforge-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting CardForge Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	deckRepo := repository.NewDeckRepo(pool)
	noteRepo := repository.NewNoteRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize RunPod Clients ────
	llmClient := runpod.NewClient(
		cfg.RunPodLLMEndpoint,
		cfg.RunPodAPIKey,
		cfg.RunPodModel,
		time.Duration(cfg.RunPodPollInterval)*time.Millisecond,
		time.Duration(cfg.RunPodTimeout)*time.Millisecond,
	)
	asrClient := runpod.NewASRClient(
		cfg.RunPodASREndpoint,
		cfg.RunPodAPIKey,
		time.Duration(cfg.RunPodPollInterval)*time.Millisecond,
	)
	if llmClient.Configured() {
		log.Println("✓ LLM endpoint configured")
	} else {
		log.Println("⚠ LLM endpoint not configured — decks fall back to sentence chunking")
	}

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	captionCache := services.NewRedisCaptionCache(redisClients.Queue)
	youtubeService := services.NewYouTubeService(asrClient, captionCache, time.Duration(cfg.CaptionCacheTTL)*time.Hour)
	mediaService := services.NewMediaService(asrClient, cfg.StoragePath, cfg.PublicBaseURL)
	fileExtractService := services.NewFileExtractService()
	webExtractService := services.NewWebExtractService()
	extractService := services.NewExtractService(
		youtubeService,
		mediaService,
		fileExtractService,
		webExtractService,
		cfg.StoragePath,
		cfg.MaxSourceChars,
	)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth)

	generator := engine.NewGenerator(llmClient, engine.Options{
		Model:            cfg.RunPodModel,
		MaxTokens:        cfg.RunPodMaxTokens,
		GuidedJSON:       cfg.GuidedJSON,
		Budget:           time.Duration(cfg.GenerationBudget) * time.Millisecond,
		BatchSize:        cfg.GenerationBatchSize,
		MaxQuestionChars: cfg.MaxQuestionChars,
		MaxAnswerChars:   cfg.MaxAnswerChars,
	})

	// ──── Initialize Handlers ────
	quota := middleware.NewQuota(redisClients.Queue, cfg.DailyGenerationCap)
	authHandler := handlers.NewAuthHandler(authService)
	deckHandler := handlers.NewDeckHandler(deckRepo, jobRepo, redisClients.Queue, cfg.StoragePath)
	noteHandler := handlers.NewNoteHandler(noteRepo, jobRepo, redisClients.Queue)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		generator,
		llmClient.Configured,
		extractService,
		deckRepo,
		noteRepo,
		jobRepo,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		quota,
		authHandler,
		deckHandler,
		noteHandler,
		jobHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ CardForge Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
