package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/database"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/middleware"
	"github.com/playmatatu/duel/internal/store"
	"github.com/playmatatu/duel/internal/store/pgstore"
)

// seed-wallet credits a development wallet and prints a bearer token for it.
// With -hash-admin-key it only prints a value for ADMIN_API_KEY.
func main() {
	userID := flag.String("user", "", "user id to fund")
	amount := flag.Int64("amount", 10000, "amount in minor units")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	adminKey := flag.String("hash-admin-key", "", "print the bcrypt hash of this admin key and exit")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, nil))

	if *adminKey != "" {
		hash, err := middleware.HashAdminKey(*adminKey)
		if err != nil {
			logger.Error("failed to hash admin key", "error", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if *userID == "" {
		logger.Error("missing -user")
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	st := pgstore.New(db)
	defer st.Close()

	l := ledger.New(logger)
	err = st.WithinTx(ctx, func(tx store.Tx) error {
		return l.Deposit(ctx, tx, *userID, *amount, "dev seed")
	})
	if err != nil {
		logger.Error("deposit failed", "error", err)
		os.Exit(1)
	}

	balance, err := l.Balance(ctx, st, *userID)
	if err != nil {
		logger.Error("balance lookup failed", "error", err)
		os.Exit(1)
	}

	token, err := middleware.IssueToken(cfg.JWTSecret, *userID, *ttl)
	if err != nil {
		logger.Error("failed to issue token", "error", err)
		os.Exit(1)
	}

	logger.Info("wallet funded", "user", *userID, "balance", balance)
	fmt.Println(token)
}
