package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"randomchat/backend/internal/api/handler"
	"randomchat/backend/internal/complaint"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin <command> [args]

Commands:
  mute <user_id>      block a user from the bot
  unmute <user_id>    lift a block
  stats               print user counts by status
  token [hours]       mint an admin API token (default 24h)`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Log.Mode, "warn")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	command := os.Args[1]

	if command == "token" {
		hours := 24
		if len(os.Args) > 2 {
			hours, err = strconv.Atoi(os.Args[2])
			if err != nil || hours <= 0 {
				fmt.Println("Invalid duration. Please provide a positive number of hours.")
				os.Exit(1)
			}
		}
		token, err := handler.NewAuth(cfg.HTTP.AdminSecret, cfg.Telegram.AdminID).GenerateJWT(time.Duration(hours) * time.Hour)
		if err != nil {
			log.Fatal("failed to create token", "error", err)
		}
		fmt.Println(token)
		return
	}

	db, err := storage.OpenDB(cfg.DB.Driver, cfg.DB.DSN, log)
	if err != nil {
		log.Fatal("failed to connect database", "error", err)
	}

	// Connected so writes invalidate the bot's cached counters.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = storage.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, cached stats may be stale", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	storageSvc := storage.NewStorageService(db, rdb, log)
	storageSvc.StatsTTL = cfg.Redis.StatsTTL

	switch command {
	case "mute", "unmute":
		if len(os.Args) != 3 {
			fmt.Printf("Usage: admin %s <user_id>\n", command)
			os.Exit(1)
		}
		userID, err := complaint.ParseTarget(os.Args[2])
		if err != nil {
			fmt.Println("Invalid user ID. Please provide a Telegram user id.")
			os.Exit(1)
		}
		if err := storageSvc.SetMuted(ctx, userID, command == "mute"); err != nil {
			log.Fatal("failed to update user", "user_id", userID, "error", err)
		}
		fmt.Printf("User %d has been %sd.\n", userID, command)
	case "stats":
		counts, err := storageSvc.CountByStatus(ctx)
		if err != nil {
			log.Fatal("failed to count users", "error", err)
		}
		fmt.Printf("total: %d\nidle: %d\nsearching: %d\nchatting: %d\nmuted: %d\n",
			counts.Total, counts.Idle, counts.Searching, counts.Chatting, counts.Muted)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}
