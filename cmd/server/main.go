// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/ddebettencourt/kwizniac-infinite/internal/cache"
	"github.com/ddebettencourt/kwizniac-infinite/internal/database"
	"github.com/ddebettencourt/kwizniac-infinite/internal/game"
	"github.com/ddebettencourt/kwizniac-infinite/internal/handlers"
	"github.com/ddebettencourt/kwizniac-infinite/internal/middleware"
	"github.com/ddebettencourt/kwizniac-infinite/internal/room"
	"github.com/ddebettencourt/kwizniac-infinite/internal/trivia"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Optional infrastructure: the server runs without Redis or Postgres,
	// losing only the topic-pool cache and the match archive respectively.
	redisClient, err := cache.Connect()
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	if redisClient == nil {
		logger.Info("REDIS_ADDR not set, topic pool cache disabled")
	}

	archive, err := database.Connect(context.Background())
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	if archive == nil {
		logger.Info("DATABASE_URL not set, match archive disabled")
	} else {
		defer archive.Close()
	}

	registry := room.NewRegistry()
	games := game.NewStore()
	topics := trivia.NewTopicService(redisClient)
	clues := trivia.NewClueService()
	grader := trivia.NewGradeService()

	srv := handlers.NewServer(logger, registry, games, topics, clues, grader, archive)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, srv),
	)))
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.RoomsHandler,
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
