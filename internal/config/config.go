package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	ObsHTTPAddr    string
	RedisAddr      string
	CacheEnabled   bool
	CacheTTL       time.Duration
	DatabaseURL    string
	JWTSecret      string
	ServiceName    string
	TracingEnabled bool
	JaegerURL      string
}

func Load() *Config {
	return &Config{
		HTTPAddr:       fixPort(getEnv("HTTP_ADDR", ":8080")),
		ObsHTTPAddr:    fixPort(getEnv("OBS_HTTP_ADDR", ":9090")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:   getEnvBool("CACHE_ENABLED", true),
		CacheTTL:       getEnvDuration("CACHE_TTL", time.Hour),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", "secret"),
		ServiceName:    getEnv("SERVICE_NAME", "chatrelay"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		JaegerURL:      getEnv("JAEGER_URL", "http://localhost:14268/api/traces"),
	}
}

func fixPort(port string) string {
	if port != "" && !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
