package config

import (
	"strconv"
	"time"
)

type StorageConfig interface {
	GetPostgresURL() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetStoreTimeout() time.Duration
	GetMigrateOnStart() bool
}

type Storage struct {
	src *source
}

var _ StorageConfig = Storage{}

// GetPostgresURL is the DSN for users and refresh tokens. Empty selects the
// in-memory stores.
func (s Storage) GetPostgresURL() string {
	return s.src.get("POSTGRES_URL", "")
}

// GetRedisAddr moves refresh tokens to Redis when set.
func (s Storage) GetRedisAddr() string {
	return s.src.get("REDIS_ADDR", "")
}

func (s Storage) GetRedisPassword() string {
	return s.src.get("REDIS_PASSWORD", "")
}

func (s Storage) GetRedisDB() int {
	db, err := strconv.Atoi(s.src.get("REDIS_DB", "0"))
	if err != nil || db < 0 {
		return 0
	}
	return db
}

func (s Storage) GetStoreTimeout() time.Duration {
	return s.src.duration("STORE_TIMEOUT", 5*time.Second)
}

func (s Storage) GetMigrateOnStart() bool {
	return s.src.boolean("MIGRATE_ON_START", true)
}
