// Package config loads the command core's configuration from environment
// variables: one centralized loader with an inline default per setting
// (spec.md §4.7, §6).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the full set of recognized options (spec.md §4.7).
type Config struct {
	Port              string
	JWTSecret         string
	AdminBootstrapKey string

	AWSRegion      string
	S3Endpoint     string
	S3BucketEvents string
	SQSQueueURL    string
	SQSEndpoint    string
	DynamoEndpoint string

	UsersTable         string
	ResourcesTable     string
	ReservationsTable  string
	IdempotencyTable   string
	ProjectionLagTable string

	PageLimitDefault     int
	SnapshotEveryDefault int
	// SnapshotByStreamType maps a stream type ("user"/"resource") to its
	// snapshot threshold; 0 disables snapshotting for that type.
	SnapshotByStreamType map[string]int

	VersionConflictMaxRetries              int
	EmitConcurrencyConflictUnresolvedEvent bool

	OTLPEndpoint string
	OTLPInsecure bool
	ServiceName  string
}

// Load reads Config from the process environment, applying spec.md §4.7's
// defaults for anything unset. A malformed integer, boolean or JSON value is
// returned as an error; a negative VERSION_CONFLICT_MAX_RETRIES falls back
// to 1.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminBootstrapKey: os.Getenv("ADMIN_BOOTSTRAP_KEY"),

		AWSRegion:      getenv("AWS_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3BucketEvents: os.Getenv("S3_BUCKET_EVENTS"),
		SQSQueueURL:    os.Getenv("SQS_QUEUE_URL"),
		SQSEndpoint:    os.Getenv("SQS_ENDPOINT"),
		DynamoEndpoint: os.Getenv("DYNAMO_ENDPOINT"),

		UsersTable:         getenv("USERS_PROJECTION_TABLE", "users_projection"),
		ResourcesTable:     getenv("RESOURCES_PROJECTION_TABLE", "resources_projection"),
		ReservationsTable:  getenv("RESERVATIONS_PROJECTION_TABLE", "reservations_projection"),
		IdempotencyTable:   getenv("IDEMPOTENCY_TABLE", "idempotency_table"),
		ProjectionLagTable: getenv("PROJECTION_LAG_TABLE", "projection_lag"),
	}

	var err error
	cfg.PageLimitDefault, err = getenvInt("PAGE_LIMIT_DEFAULT", 20)
	if err != nil {
		return nil, err
	}
	cfg.SnapshotEveryDefault, err = getenvInt("SNAPSHOT_EVERY_DEFAULT", 500)
	if err != nil {
		return nil, err
	}
	cfg.VersionConflictMaxRetries, err = getenvInt("VERSION_CONFLICT_MAX_RETRIES", 1)
	if err != nil {
		return nil, err
	}
	if cfg.VersionConflictMaxRetries < 0 {
		cfg.VersionConflictMaxRetries = 1
	}

	cfg.EmitConcurrencyConflictUnresolvedEvent, err = getenvBool("EMIT_CONCURRENCY_CONFLICT_UNRESOLVED_EVENT", false)
	if err != nil {
		return nil, err
	}

	cfg.SnapshotByStreamType, err = getenvStreamThresholds("SNAPSHOT_BY_STREAM_TYPE", map[string]int{
		"resource": 500,
		"user":     0,
	})
	if err != nil {
		return nil, err
	}

	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
	cfg.OTLPInsecure, err = getenvBool("OTLP_INSECURE", true)
	if err != nil {
		return nil, err
	}
	cfg.ServiceName = getenv("SERVICE_NAME", "reservecore")

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getenvStreamThresholds(key string, fallback map[string]int) (map[string]int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	var m map[string]int
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return nil, fmt.Errorf("config: %s: %w", key, err)
	}
	return m, nil
}
