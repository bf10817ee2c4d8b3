// Command create-admin provisions an admin account. Admins cannot register
// through the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coinwork/backend/internal/auth"
	"github.com/coinwork/backend/internal/config"
	"github.com/coinwork/backend/internal/db"
	"github.com/coinwork/backend/internal/repository"
)

func main() {
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin email")
	name := flag.String("name", "Administrator", "display name")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (8-72 chars); defaults to $ADMIN_PASSWORD")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: create-admin -email admin@example.com -password <secret> [-name Name]")
		os.Exit(2)
	}

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	svc := auth.NewService(repository.NewUserRepo(pool), cfg.JWTSecret, cfg.TokenTTL)
	admin, err := svc.CreateAdmin(ctx, *email, *password, *name)
	if err != nil {
		logger.Error("failed to create admin", "error", err)
		os.Exit(1)
	}
	fmt.Printf("admin created: id=%s email=%s\n", admin.ID, admin.Email)
}
