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

	"github.com/redis/go-redis/v9"

	"tutor-backend/internal/config"
	"tutor-backend/internal/database"
	"tutor-backend/internal/handlers"
	"tutor-backend/internal/middleware"
	"tutor-backend/internal/repository"
	"tutor-backend/internal/router"
	"tutor-backend/internal/services"
	"tutor-backend/internal/websocket"
	"tutor-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Tutor Backend...")

	// ──── Step 1: Load Configuration ────
	cfg := config.Load()
	log.Println("✓ Configuration loaded")

	// ──── Step 2: Open Storage ────
	var (
		userRepo services.UserRepository
		chatRepo services.ChatRepository
	)
	if database.IsSQLiteURL(cfg.DatabaseURL) {
		db, err := database.NewSQLite(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ SQLite open failed: %v", err)
		}
		defer db.Close()
		userRepo = repository.NewSQLiteUserRepo(db)
		chatRepo = repository.NewSQLiteChatRepo(db)
		log.Println("✓ SQLite opened")
	} else {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		log.Println("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, "migrations"); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ Database migrations applied")

		userRepo = repository.NewUserRepo(pool)
		chatRepo = repository.NewChatRepo(pool)
	}

	// ──── Step 3: Initialize Redis Clients (optional) ────
	var mainRedis, pubsubRedis *redis.Client
	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		mainRedis, pubsubRedis = redisClients.Main, redisClients.PubSub
		log.Println("✓ Redis connected")
	} else {
		log.Println("• REDIS_URL not set: topic cache tier, live events and background titles disabled")
	}

	// ──── Step 4: Initialize LLM Oracle ────
	var oracle services.Oracle
	switch cfg.LLMProvider {
	case "openai":
		oracle = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, cfg.LLMRequestsPerMin, cfg.LLMConcurrentReqs)
		log.Println("✓ OpenAI-compatible client initialized")
	default:
		gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.LLMModel, cfg.LLMRequestsPerMin, cfg.LLMConcurrentReqs)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		oracle = gemini
		log.Println("✓ Gemini client initialized")
	}
	defer oracle.Close()

	// ──── Step 5: Topic Catalog ────
	rootCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	topics := services.NewTopicCatalog(cfg.SyllabusPath, mainRedis, cfg.TopicCacheTTL)
	if err := topics.Watch(rootCtx); err != nil {
		log.Printf("✗ Syllabus watcher not started: %v", err)
	} else {
		log.Printf("✓ Watching %s for syllabus changes", cfg.SyllabusPath)
	}

	// ──── Step 6: Tutoring Engine ────
	tutor := services.NewTutorService(userRepo, chatRepo, oracle, topics, services.TutorConfig{
		HintWindow:  cfg.HintWindow,
		JudgeWindow: cfg.JudgeWindow,
	})

	var workerPool *worker.Pool
	if mainRedis != nil {
		publisher := services.NewRedisPublisher(mainRedis)
		tutor.WithEvents(publisher).WithTitleJobs(services.NewRedisTitleQueue(mainRedis))

		workerPool = worker.NewPool(mainRedis, tutor, publisher, cfg.TitleWorkers)
		workerPool.Start()
		log.Printf("✓ Worker pool started (%d goroutines)", cfg.TitleWorkers)
	}

	// ──── Step 7: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(pubsubRedis, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		handlers.NewChatHandler(tutor),
		handlers.NewProgressHandler(tutor),
		handlers.NewSyllabusHandler(topics, tutor),
		wsHub,
		cfg.FrontendURL,
		cfg.ChatAuthRequired,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Hint and judge calls can take a while.
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		if workerPool != nil {
			workerPool.Stop()
		}
		stopWatch()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Tutor Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
