package config

import (
	"os"
	"strings"
	"time"
)

// Server captures HTTP server level configuration. AdminAPIKey unlocks the
// reviewer login route; when empty, no admin tokens can be minted.
type Server struct {
	Addr          string
	JWTSigningKey string
	AdminAPIKey   string
}

// Storage selects the persistence backends. Empty URLs fall back to the
// in-memory implementations.
type Storage struct {
	DatabaseURL string
	RedisURL    string
}

// Kafka configures the optional audit fan-out sink.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Envelope configures master key derivation. Passphrase and salt must both
// be set outside development.
type Envelope struct {
	Passphrase string
	Salt       string
}

// Release configures issuance behavior.
type Release struct {
	Validity      time.Duration
	SweepInterval time.Duration
}

// Config is everything main needs, built once from the environment.
type Config struct {
	Server   Server
	Storage  Storage
	Kafka    Kafka
	Envelope Envelope
	Release  Release
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("LIFEKEY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	passphrase := os.Getenv("MASTER_KEY_PASSPHRASE")
	if passphrase == "" {
		passphrase = "dev-master-passphrase"
	}
	salt := os.Getenv("MASTER_KEY_SALT")
	if salt == "" {
		salt = "dev-master-salt"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "lifekey.audit"
	}

	return Config{
		Server: Server{
			Addr:          addr,
			JWTSigningKey: jwtSigningKey,
			AdminAPIKey:   os.Getenv("ADMIN_API_KEY"),
		},
		Storage: Storage{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			RedisURL:    os.Getenv("REDIS_URL"),
		},
		Kafka: Kafka{
			Brokers: brokers,
			Topic:   topic,
		},
		Envelope: Envelope{
			Passphrase: passphrase,
			Salt:       salt,
		},
		Release: Release{
			Validity:      durationEnv("RELEASE_VALIDITY", 6*time.Hour),
			SweepInterval: durationEnv("RELEASE_SWEEP_INTERVAL", 0),
		},
	}
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
