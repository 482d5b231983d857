package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	RequestTimeout time.Duration
	PublicBaseURL  string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Geo      GeoConfig
	Ledger   LedgerConfig
	Auth     AuthConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CatalogTTL   time.Duration
}

// KafkaConfig holds broker settings. Empty brokers disable the reconciliation topic.
type KafkaConfig struct {
	Brokers             string
	ReconciliationTopic string
	ConsumerGroup       string
}

// GeoConfig holds geofence settings.
type GeoConfig struct {
	Enabled                 bool
	MaxDistanceMeters       float64
	AccuracyThresholdMeters float64
}

// LedgerConfig holds the EVM ledger settings. The ledger is configured only
// when the RPC URL, contract address and signer key are all present.
type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	SignerKey       string
	ChainID         int64
	Confirmations   uint64
	ClaimTimeout    time.Duration
	ExplorerURL     string
}

// Configured reports whether every value needed to submit claims is set.
func (c LedgerConfig) Configured() bool {
	return c.RPCURL != "" && c.ContractAddress != "" && c.SignerKey != ""
}

// AuthConfig holds the holder token key. Empty means holder ids are taken from the request body.
type AuthConfig struct {
	HolderTokenSigningKey string
	HolderTokenIssuer     string
}

// ClaimResponseMargin is the time a collect request needs after the ledger
// claim returns: the credential store write plus writing the response.
const ClaimResponseMargin = 10 * time.Second

// Validate rejects settings the server cannot run with. The HTTP timeout must
// outlast the claim timeout by ClaimResponseMargin, otherwise the timeout
// handler answers first and a pending claim looks like a generic failure.
func (s Server) Validate() error {
	var errs []error
	if s.RequestTimeout < s.Ledger.ClaimTimeout+ClaimResponseMargin {
		errs = append(errs, fmt.Errorf(
			"REQUEST_TIMEOUT (%s) must be at least LEDGER_CLAIM_TIMEOUT (%s) plus %s",
			s.RequestTimeout, s.Ledger.ClaimTimeout, ClaimResponseMargin,
		))
	}
	if s.Geo.AccuracyThresholdMeters <= 0 || s.Geo.MaxDistanceMeters <= 0 {
		errs = append(errs, errors.New("geofence distances must be positive"))
	}
	if s.Ledger.Configured() && s.Ledger.ChainID <= 0 {
		errs = append(errs, errors.New("LEDGER_CHAIN_ID must be positive when the ledger is configured"))
	}
	return errors.Join(errs...)
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           getEnv("VISITPROOF_ADDR", ":8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 120*time.Second),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CatalogTTL:   getDuration("CATALOG_CACHE_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:             os.Getenv("KAFKA_BROKERS"),
			ReconciliationTopic: getEnv("KAFKA_RECONCILIATION_TOPIC", "visitproof.reconciliation"),
			ConsumerGroup:       getEnv("KAFKA_RECONCILIATION_GROUP", "visitproof-reconciler"),
		},
		Geo: GeoConfig{
			Enabled:                 os.Getenv("LOCATION_VERIFICATION_ENABLED") == "true",
			MaxDistanceMeters:       getFloat("GEOFENCE_MAX_DISTANCE_METERS", 100),
			AccuracyThresholdMeters: getFloat("GEOFENCE_ACCURACY_THRESHOLD_METERS", 50),
		},
		Ledger: LedgerConfig{
			RPCURL:          os.Getenv("LEDGER_RPC_URL"),
			ContractAddress: os.Getenv("LEDGER_CONTRACT_ADDRESS"),
			SignerKey:       os.Getenv("LEDGER_SIGNER_KEY"),
			ChainID:         int64(getInt("LEDGER_CHAIN_ID", 8453)),
			Confirmations:   uint64(getInt("LEDGER_CONFIRMATIONS", 1)), //nolint:gosec // getInt never returns a negative value
			ClaimTimeout:    getDuration("LEDGER_CLAIM_TIMEOUT", 90*time.Second),
			ExplorerURL:     strings.TrimRight(getEnv("LEDGER_EXPLORER_URL", "https://basescan.org"), "/"),
		},
		Auth: AuthConfig{
			HolderTokenSigningKey: os.Getenv("HOLDER_TOKEN_SIGNING_KEY"),
			HolderTokenIssuer:     getEnv("HOLDER_TOKEN_ISSUER", "visitproof"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
