package main

import (
	"context"
	"fmt"

	"github.com/mmuslimabdulj/goat-whisper/internal/auth"
	"github.com/mmuslimabdulj/goat-whisper/internal/config"
	"github.com/mmuslimabdulj/goat-whisper/internal/encryption"
	"github.com/mmuslimabdulj/goat-whisper/internal/logging"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/accounts"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/messages"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

type app struct {
	cfg   *config.Config
	log   *zap.Logger
	authn *auth.Authenticator
	cipher *encryption.Cipher
}

func wireApp() (*app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	authn, err := auth.NewAuthenticator(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("wire authenticator: %w", err)
	}

	cipher, err := encryption.New([]byte(cfg.EncryptionKey), []byte(cfg.EncryptionIV))
	if err != nil {
		return nil, fmt.Errorf("wire cipher: %w", err)
	}

	return &app{cfg: cfg, log: log, authn: authn, cipher: cipher}, nil
}

// withAccounts opens the account database for the duration of fn
func (a *app) withAccounts(fn func(repo *accounts.Repository) error) error {
	db, err := accounts.Open(a.cfg.DatabasePath, logger.Silent)
	if err != nil {
		return fmt.Errorf("open account database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	return fn(accounts.NewRepository(db))
}

// withMessages opens the message store for the duration of fn
func (a *app) withMessages(fn func(store *messages.Store) error) error {
	kv, err := messages.Open(a.cfg.BadgerPath, a.log)
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}
	defer kv.Close()
	return fn(messages.NewStore(kv, a.log))
}

// resolve looks up accounts by email
func resolve(ctx context.Context, repo *accounts.Repository, emails ...string) ([]*accounts.Account, error) {
	out := make([]*accounts.Account, 0, len(emails))
	for _, email := range emails {
		acc, err := repo.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", email, err)
		}
		out = append(out, acc)
	}
	return out, nil
}
