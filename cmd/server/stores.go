package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-login-broker/auth"
	"github.com/jrsteele09/go-login-broker/internal/config"
	"github.com/jrsteele09/go-login-broker/server"
	"github.com/jrsteele09/go-login-broker/storage/postgres"
	"github.com/jrsteele09/go-login-broker/token/refresh/redisrepo"
	refreshrepofake "github.com/jrsteele09/go-login-broker/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-login-broker/users/repofake"
)

type stores struct {
	repos   auth.Repos
	health  map[string]server.HealthCheck
	closers []func() error
}

func (s *stores) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

// openStores picks the durable stores from configuration. Users live in
// Postgres when it is configured; refresh tokens prefer Redis, then Postgres.
// Anything unconfigured falls back to memory.
func openStores(ctx context.Context, c config.StorageConfig) (*stores, error) {
	s := &stores{health: map[string]server.HealthCheck{}}

	var db *sql.DB
	if url := c.GetPostgresURL(); url != "" {
		openCtx, cancel := context.WithTimeout(ctx, c.GetStoreTimeout())
		defer cancel()

		var err error
		db, err = postgres.Open(openCtx, url)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if c.GetMigrateOnStart() {
			if err := postgres.Migrate(openCtx, db); err != nil {
				s.close()
				return nil, err
			}
		}

		userRepo := postgres.NewUserRepo(db)
		s.repos.Users = userRepo
		s.repos.RefreshTokens = postgres.NewRefreshTokenRepo(db)
		s.health["postgres"] = userRepo.Ping
	} else {
		log.Warn().Msg("POSTGRES_URL not set, users are kept in memory")
		s.repos.Users = fakeuserrepo.NewFakeUserRepo()
	}

	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		s.closers = append(s.closers, client.Close)

		repo := redisrepo.NewRepo(client)
		pingCtx, cancel := context.WithTimeout(ctx, c.GetStoreTimeout())
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			s.close()
			return nil, fmt.Errorf("openStores redis %s: %w", addr, err)
		}
		s.repos.RefreshTokens = repo
		s.health["redis"] = repo.Ping
	}

	if s.repos.RefreshTokens == nil {
		log.Warn().Msg("no durable refresh token store configured, tokens are kept in memory")
		s.repos.RefreshTokens = refreshrepofake.NewFakeRefreshTokenRepo()
	}
	return s, nil
}
