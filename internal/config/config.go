package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultRoundMs = 30000

type Config struct {
	Port           string
	RoundMs        int
	RequireReady   bool
	AllowedOrigins []string
}

// Load reads configuration from the environment, with a .env file as
// fallback for local development.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           getenv("PORT", "8080"),
		RoundMs:        getenvInt("ROUND_DURATION_MS", defaultRoundMs),
		RequireReady:   getenvBool("REQUIRE_READY", false),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "*")),
	}
}

// OriginHosts strips schemes from the allowed origins; the websocket accept
// check matches host patterns, not full origins.
func (c Config) OriginHosts() []string {
	out := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, o)
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
