/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/aura-assist/gateway/config"
	"github.com/aura-assist/gateway/internal/audit"
	"github.com/aura-assist/gateway/internal/db"
	"github.com/aura-assist/gateway/internal/mq"
	"github.com/aura-assist/gateway/internal/services"
	"github.com/aura-assist/gateway/internal/store"
	"github.com/aura-assist/gateway/internal/token"
)

// app bundles the wiring shared by the serving commands.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *sql.DB
	users    *services.UserService
	queue    mq.Backend
	recorder audit.Recorder
}

func newLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// newApp connects the database, token service, repositories, and audit
// pipeline from configuration.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.LoadConfig()
	log := newLogger()

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tokens, err := token.NewService([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	users := services.NewUserService(
		store.NewUserRepository(dbConn),
		store.NewSessionRepository(dbConn),
		tokens,
	)

	queue, err := mq.NewBackend(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	var recorder audit.Recorder = audit.NopRecorder{}
	if queue != nil {
		recorder = audit.NewQueueRecorder(queue, cfg.Audit.Queue, log)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       dbConn,
		users:    users,
		queue:    queue,
		recorder: recorder,
	}, nil
}

func (a *app) close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
