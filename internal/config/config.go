package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr          string
	BookingAPIBaseURL string
	GatewayBaseURL    string
	GatewayKeyID      string
	Currency          string
	CRDBDSN           string
	MongoURI          string
	RedisAddr         string
	RabbitURL         string
	FlowTTL           time.Duration
	GuardTTL          time.Duration
	OTLPEndpoint      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	flowTTL, _ := time.ParseDuration(os.Getenv("FLOW_TTL"))
	if flowTTL == 0 {
		flowTTL = 15 * time.Minute
	}
	guardTTL, _ := time.ParseDuration(os.Getenv("GUARD_TTL"))
	if guardTTL == 0 {
		guardTTL = 30 * time.Second
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "INR"
	}

	return &Config{
		HTTPAddr:          addr,
		BookingAPIBaseURL: os.Getenv("BOOKING_API_BASE_URL"),
		GatewayBaseURL:    os.Getenv("GATEWAY_BASE_URL"),
		GatewayKeyID:      os.Getenv("GATEWAY_KEY_ID"),
		Currency:          currency,
		CRDBDSN:           os.Getenv("CRDB_DSN"),
		MongoURI:          os.Getenv("MONGO_URI"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		FlowTTL:           flowTTL,
		GuardTTL:          guardTTL,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
