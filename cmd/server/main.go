package main // Entry point package

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/account-api/internal/analytics"
	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/config"
	"github.com/iliyamo/account-api/internal/database"
	"github.com/iliyamo/account-api/internal/email"
	"github.com/iliyamo/account-api/internal/handler"
	"github.com/iliyamo/account-api/internal/middleware"
	"github.com/iliyamo/account-api/internal/repository"
	"github.com/iliyamo/account-api/internal/router"
	"github.com/iliyamo/account-api/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}
	if err := database.Bootstrap(ctx, db, cfg.SuperadminEmail, cfg.SuperadminPass, cfg.BcryptCost); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	store, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	users := repository.NewUserRepo(db)
	codec := auth.NewCodec(cfg.JWTSecret)
	mail := email.NewResendClient(cfg.ResendKey, cfg.EmailFrom)
	sink := analytics.NewPublisher(cfg.RabbitURL)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), config.NewRedisClient())

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: strings.Split(cfg.CORSOrigin, ","),
	}))

	router.RegisterRoutes(e)
	router.RegisterAPI(e,
		handler.NewLoginHandler(users, codec),
		handler.NewUserHandler(cfg, users, codec, mail, store, sink),
		codec, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
