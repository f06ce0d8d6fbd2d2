package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvDB          = "LEDGERD_DB"
	EnvDriver      = "LEDGERD_DRIVER"
	EnvGenesis     = "LEDGERD_GENESIS"
	EnvRedisAddr   = "LEDGERD_REDIS_ADDR"
	EnvRedisStream = "LEDGERD_REDIS_STREAM"
)

// Defaults for unset variables.
const (
	DefaultDB          = "ledgerd.db"
	DefaultDriver      = "sqlite3"
	DefaultGenesis     = "genesis.cue"
	DefaultRedisStream = "ledgerd:events"
)

// Env is the runtime configuration taken from the process environment.
type Env struct {
	DB          string // SQLite path
	Driver      string // "sqlite3" (cgo) or "sqlite" (pure Go)
	Genesis     string // genesis file path
	RedisAddr   string // empty disables event publication
	RedisStream string
}

// LoadEnv loads dotenv files into the process environment and reads the
// ledgerd variables. Variables already set in the environment win over
// dotenv values. With no files, ".env" is tried; a missing default file is
// not an error.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Env{}, fmt.Errorf("load env files: %w", err)
	}

	env := Env{
		DB:          getEnv(EnvDB, DefaultDB),
		Driver:      getEnv(EnvDriver, DefaultDriver),
		Genesis:     getEnv(EnvGenesis, DefaultGenesis),
		RedisAddr:   getEnv(EnvRedisAddr, ""),
		RedisStream: getEnv(EnvRedisStream, DefaultRedisStream),
	}
	if env.Driver != "sqlite3" && env.Driver != "sqlite" {
		return Env{}, fmt.Errorf("%s: unsupported driver %q (want sqlite3 or sqlite)", EnvDriver, env.Driver)
	}
	return env, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
