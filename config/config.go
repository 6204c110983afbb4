package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	Port            string `env:"PORT" envDefault:"8080"`
	InitialCash     string `env:"INITIAL_CASH_BALANCE" envDefault:"10000"`
	Mongo           Mongo
	MarketAPI       MarketAPI
	Feed            Feed
	Jobs            Jobs
	GainersPageSize int `env:"GAINERS_PAGE_SIZE" envDefault:"5"`
}

type Mongo struct {
	URI      string `env:"MONGODB_URI"`
	Database string `env:"DATABASE_NAME" envDefault:"trading-engine"`
}

type MarketAPI struct {
	URL     string        `env:"MARKET_API_URL"`
	Timeout time.Duration `env:"MARKET_API_TIMEOUT" envDefault:"10s"`
	Debug   bool          `env:"MARKET_API_DEBUG" envDefault:"false"`
}

type Feed struct {
	URL               string        `env:"FEED_URL"`
	ReconnectDelay    time.Duration `env:"FEED_RECONNECT_DELAY" envDefault:"1s"`
	ReconnectAttempts int           `env:"FEED_RECONNECT_ATTEMPTS" envDefault:"5"`
	TickBufferSize    int           `env:"FEED_TICK_BUFFER_SIZE" envDefault:"256"`
}

type Jobs struct {
	SnapshotRefreshInterval time.Duration `env:"SNAPSHOT_REFRESH_JOB_INTERVAL" envDefault:"5m"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
