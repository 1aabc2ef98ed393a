package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	InstanceID  string
	ServerPort  int
	LogLevel    string
	PublicURL   string
	CSRF        bool

	DatabaseURL string

	JWTAccessSecret []byte
	AuthHTTPURL     string

	StoreBackend  string
	StoreDir      string
	StoreTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EventsTransport string
	KafkaBrokers    []string
	KafkaTopic      string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "storefront"),
		InstanceID:  EnvDefault("INSTANCE_ID", hostname()),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),
		PublicURL:   EnvDefault("PUBLIC_URL", "http://localhost:8080/"),
		CSRF:        EnvBoolDefault("CSRF_ENABLED", true),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: []byte(os.Getenv("JWT_SECRET")),
		AuthHTTPURL:     os.Getenv("AUTH_URL"),

		StoreBackend:  EnvDefault("STORE_BACKEND", "memory"),
		StoreDir:      EnvDefault("STORE_DIR", "./data/store"),
		StoreTTL:      time.Duration(EnvIntDefault("STORE_TTL_HOURS", 0)) * time.Hour,
		RedisAddr:     EnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       EnvIntDefault("REDIS_DB", 0),

		EventsTransport: EnvDefault("EVENTS_TRANSPORT", "memory"),
		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      EnvDefault("KAFKA_TOPIC", "storefront_changes"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "products"),
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}

// Validate stops the process when a setting required by the selected
// backends is missing.
func (c Config) Validate() {
	MustNonEmpty(c.DatabaseURL, "DATABASE_URL")
	MustNonEmptyBytes(c.JWTAccessSecret, "JWT_SECRET")
	MustNonEmpty(c.AuthHTTPURL, "AUTH_URL")

	MustOneOf(c.StoreBackend, "STORE_BACKEND", "memory", "file", "redis")
	MustOneOf(c.EventsTransport, "EVENTS_TRANSPORT", "memory", "kafka", "postgres")

	if c.EventsTransport == "kafka" && len(c.KafkaBrokers) == 0 {
		log.Fatalf("missing required env %s", "KAFKA_BROKERS")
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvBoolDefault(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
