package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/iadvisors/brand-assistant/internal/brand"
	"github.com/iadvisors/brand-assistant/internal/chat"
	"github.com/iadvisors/brand-assistant/internal/config"
	"github.com/iadvisors/brand-assistant/internal/db"
	"github.com/iadvisors/brand-assistant/internal/httpapi"
	"github.com/iadvisors/brand-assistant/internal/logger"
	"github.com/iadvisors/brand-assistant/internal/models"
	"github.com/iadvisors/brand-assistant/internal/store/rabbitmq"
	"github.com/iadvisors/brand-assistant/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&brand.Brand{},
		&brand.UserBrand{},
		&chat.Thread{},
		&chat.Message{},
		&chat.Job{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Log.Warnf("rabbit unavailable, async chat disabled: %v", err)
		} else {
			rabbit = p
			defer rabbit.Close()
		}
	}

	r := httpapi.NewRouter(gdb, cfg, rds, rabbit)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Log.Infof("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
