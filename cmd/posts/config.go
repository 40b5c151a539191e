package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	Addr      string
	Source    string // "http" or "nats"
	BaseURL   string
	NatsURL   string
	Delay     time.Duration
	StaleTime time.Duration // detail screens; the list uses listStaleTime
	CacheTime time.Duration
	Navigate  time.Duration
	SeedPosts int
	LogLevel  slog.Level
}

const listStaleTime = 5 * time.Minute

func loadConfig() config {
	return config{
		Addr:      getEnv("ADDR", ":8080"),
		Source:    strings.ToLower(getEnv("SOURCE", "http")),
		BaseURL:   getEnv("BASE_URL", "https://jsonplaceholder.typicode.com"),
		NatsURL:   getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		Delay:     getEnvDuration("DELAY", time.Second),
		StaleTime: getEnvDuration("STALE_TIME", 3*time.Second),
		CacheTime: getEnvDuration("CACHE_TIME", 5*time.Minute),
		Navigate:  getEnvDuration("NAVIGATE_EVERY", 2*time.Second),
		SeedPosts: getEnvInt("SEED_POSTS", 10),
		LogLevel:  getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func (c config) validate() error {
	switch c.Source {
	case "http", "nats":
	default:
		return fmt.Errorf("unknown SOURCE %q", c.Source)
	}
	if c.Navigate <= 0 {
		return fmt.Errorf("NAVIGATE_EVERY must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(getEnv(key, fallback.String()))); err != nil {
		return fallback
	}
	return l
}
