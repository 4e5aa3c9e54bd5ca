package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/logging"
	"chatrelay/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <migrate|history|online> [args]")
		os.Exit(1)
	}

	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("failed to read configuration: %v", err)
	}
	logger := logging.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	command := os.Args[1]

	switch command {
	case "migrate":
		db := openDB(cfg, logger)
		if err := storage.AutoMigrate(db); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		fmt.Println("Migrations applied.")
	case "history":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin history <room_id> [limit]")
			os.Exit(1)
		}
		limit := cfg.HistoryLimit
		if len(os.Args) > 3 {
			limit, err = strconv.Atoi(os.Args[3])
			if err != nil || limit <= 0 {
				fmt.Println("Invalid limit. Please provide a positive integer.")
				os.Exit(1)
			}
		}
		store := storage.NewStorageService(openDB(cfg, logger), nil, logger)
		if err := printHistory(ctx, store, os.Args[2], limit); err != nil {
			logger.Fatal("failed to read history", zap.Error(err))
		}
	case "online":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		store := storage.NewStorageService(nil, rdb, logger)
		ids, err := store.OnlineUserIDs(ctx)
		if err != nil {
			logger.Fatal("failed to read online set", zap.Error(err))
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		fmt.Printf("%d user(s) online.\n", len(ids))
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func openDB(cfg *config.Config, logger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	return db
}

func printHistory(ctx context.Context, s storage.Storage, roomID string, limit int) error {
	msgs, err := s.ListHistory(ctx, roomID, limit)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		line := m.Text
		if a := m.Attachment(); a != nil {
			line = fmt.Sprintf("%s [%s %s]", line, a.Filename, a.URL)
		}
		fmt.Printf("%s #%d %s: %s (reactions=%d, read=%d)\n",
			m.CreatedAt.Format(time.RFC3339), m.ID, m.SenderID, line, len(m.Reactions), len(m.Reads))
	}
	return nil
}
