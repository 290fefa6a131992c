package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/mohit83k/radius-aaa/internal/config"
	"github.com/mohit83k/radius-aaa/internal/events"
	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogrusLogger(cfg.LogFilePath, cfg.LogLevel)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}

	rdb := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer rdb.Close()

	log.Info("Started subscriber for " + events.Channel)
	err = events.Subscribe(ctx, rdb, log, func(e events.Event) {
		log.WithFields(map[string]any{
			"timestamp": e.Time.Format("2006-01-02 15:04:05.000000"),
			"received":  time.Now().Format("2006-01-02 15:04:05.000000"),
			"event":     e.Name,
			"account":   e.Account,
			"nas":       e.NasAddr,
			"session":   e.SessionID,
			"cache_key": e.CacheKey,
		}).Info("Received AAA event")
	})
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	log.Info("Shutting down event subscriber")
}
