package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/handlers"
	"github.com/edustack/practice-api/jobs"
	"github.com/edustack/practice-api/quiz"
	"github.com/edustack/practice-api/utils"
)

func main() {
	// Set up logging with timestamps
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	utils.LogStartup("Practice API starting...")

	if err := godotenv.Load(); err != nil {
		utils.LogInfo("No .env file found, using environment variables")
	}

	port := utils.GetEnvOrDefault("PORT", "8080")
	dbPath := utils.GetEnvOrDefault("DB_PATH", "./practice.db")
	redisURL := os.Getenv("REDIS_URL")
	utils.LogInfo("Config: port=%s db=%s redis_enabled=%t", port, dbPath, redisURL != "")

	utils.LogStartup("Initializing database connection...")
	database, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize database: %v", err)
	}

	experiments := adaptive.NewExperimentManager(database)
	scoring := adaptive.NewMasteryScoringService(database)
	engine := adaptive.NewPracticeEngine(database, experiments)
	sessions := quiz.NewSessionService(database, engine, scoring)

	// Background jobs are optional: without Redis, mastery recomputes run
	// inline after each quiz submission.
	var jobManager *jobs.JobManager
	if redisURL != "" {
		utils.LogStartup("Starting background job manager...")
		jobManager = jobs.NewJobManager(redisURL, database)
		jobManager.RegisterHandlers(sessions)
		sessions.SetDispatcher(jobManager)
		go func() {
			if err := jobManager.Start(); err != nil {
				utils.LogError("Job manager stopped: %v", err)
			}
		}()
	} else {
		utils.LogStartup("REDIS_URL not set, mastery updates will run inline")
	}

	// Set up graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		utils.LogShutdown("Received shutdown signal...")
		if jobManager != nil {
			jobManager.Stop()
		}
		if err := database.Close(); err != nil {
			utils.LogError("Error closing database: %v", err)
		} else {
			utils.LogShutdown("Database connection closed successfully")
		}
		os.Exit(0)
	}()

	utils.LogStartup("Setting up API routes...")
	router := handlers.NewRouter(database, engine, scoring, sessions)

	// Create server with timeouts
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	utils.LogStartup("Server ready to accept connections at http://localhost:%s", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[FATAL] Server failed to start: %v", err)
	}
}
