package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings carries everything the settlement clients need at construction
// time. Nothing in this struct is looked up from ambient storage per call:
// the API token and gateway key are injected once, here.
type Settings struct {
	APIBaseURL      string
	APIToken        string
	GatewayKeyId    string
	HTTPTimeout     time.Duration
	RateLimitPerMin int64
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// LoadSettings reads the settlement client configuration from the
// environment. The API token is required; everything else has defaults.
func LoadSettings() (Settings, error) {
	baseURL := strings.TrimSpace(os.Getenv("SETTLEMENT_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:9000/api"
	}
	token := strings.TrimSpace(os.Getenv("SETTLEMENT_API_TOKEN"))
	if token == "" {
		return Settings{}, errors.New("SETTLEMENT_API_TOKEN is empty")
	}
	keyId := strings.TrimSpace(os.Getenv("GATEWAY_KEY_ID"))
	if keyId == "" {
		return Settings{}, errors.New("GATEWAY_KEY_ID is empty")
	}

	timeoutSeconds := int64FromEnv("SETTLEMENT_HTTP_TIMEOUT_SECONDS", 30)
	rateLimit := int64FromEnv("SETTLEMENT_RATE_LIMIT_PER_MIN", 60)

	return Settings{
		APIBaseURL:      strings.TrimRight(baseURL, "/"),
		APIToken:        token,
		GatewayKeyId:    keyId,
		HTTPTimeout:     time.Duration(timeoutSeconds) * time.Second,
		RateLimitPerMin: rateLimit,
	}, nil
}

func int64FromEnv(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
