package main

import (
	"context"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"

	"roomchat/internal/avatars"
	"roomchat/internal/realtime"
	"roomchat/internal/server"
	"roomchat/internal/session"
	"roomchat/internal/storage"
)

type sessionEnvConfig struct {
	Secret string        `env:"SESSION_SECRET" envDefault:"dev-secret-change-in-production"`
	TTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	cfg := server.EnvConfig{}
	if err := env.Parse(&cfg); err != nil {
		sugar.Fatalf("Cannot parse env config: %v", err)
	}

	dbCfg := storage.Config{}
	if err := env.Parse(&dbCfg); err != nil {
		sugar.Fatalf("Cannot parse db env config: %v", err)
	}

	sessCfg := sessionEnvConfig{}
	if err := env.Parse(&sessCfg); err != nil {
		sugar.Fatalf("Cannot parse session env config: %v", err)
	}

	avCfg := avatars.Config{}
	if err := env.Parse(&avCfg); err != nil {
		sugar.Fatalf("Cannot parse avatar env config: %v", err)
	}

	store, err := storage.New(sugar, dbCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	var av *avatars.Storage
	if avCfg.Endpoint != "" {
		av, err = avatars.New(avCfg)
		if err != nil {
			sugar.Fatalf("Cannot create avatar storage: %v", err)
		}
		if err := av.EnsureBucket(context.Background()); err != nil {
			sugar.Fatalf("Cannot ensure avatar bucket: %v", err)
		}
	} else {
		sugar.Info("Avatar storage is not configured, uploads disabled")
	}

	sessions := session.NewManager(sessCfg.Secret, sessCfg.TTL)

	hub := realtime.NewHub(sugar)
	go hub.Run()

	serverOpts := []server.Option{
		server.WithEnvConfig(cfg),
		server.ReadTimeout(5 * time.Second),
		server.RegisterAfterShutdown(hub.Stop),
	}

	srv, err := server.NewServer(sugar, store, sessions, hub, av, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
