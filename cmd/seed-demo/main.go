package main

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/olababsmichael/cbt-exam-system/internal/config"
	"github.com/olababsmichael/cbt-exam-system/internal/database"
	"github.com/olababsmichael/cbt-exam-system/internal/logger"
	"github.com/olababsmichael/cbt-exam-system/internal/model"
	"github.com/olababsmichael/cbt-exam-system/internal/repository"
)

// Seeds a demo admin and student account for local development. Does nothing
// if any users already exist, so it is safe to run on every startup script.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)

	count, err := userRepo.Count(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count users")
	}
	if count > 0 {
		log.Info().Int64("users", count).Msg("Users already exist, skipping demo seed")
		return
	}

	accounts := []struct {
		email    string
		name     string
		role     model.Role
		password string
	}{
		{"admin@example.com", "Demo Admin", model.RoleAdmin, "adminpass"},
		{"student@example.com", "Demo Student", model.RoleStudent, "pass"},
	}

	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		u := &model.User{
			Email:        a.email,
			Name:         a.name,
			Role:         a.role,
			PasswordHash: string(hash),
		}
		if err := userRepo.Create(ctx, u); err != nil {
			log.Fatal().Err(err).Str("email", a.email).Msg("Failed to create user")
		}
		log.Info().Str("email", a.email).Str("role", string(a.role)).Msg("Demo user created")
	}
}
