package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// DefaultEnvFile is read by Load when it exists.
const DefaultEnvFile = ".env"

type Config struct {
	DatabaseURL string // DATATABLE_DATABASE_URL (required)
	GRPCAddr    string // DATATABLE_GRPC_ADDR (default ":9090")
	HTTPAddr    string // DATATABLE_HTTP_ADDR (default ":8080")
	NATSURL     string // DATATABLE_NATS_URL (optional, empty = no events)

	// Auth: a JWT secret takes precedence over the static token. Both empty
	// disables authentication.
	AuthToken string // DATATABLE_AUTH_TOKEN
	JWTSecret string // DATATABLE_JWT_SECRET

	Location            *time.Location // DATATABLE_TIMEZONE (default "UTC")
	DefaultCapabilities []string       // DATATABLE_DEFAULT_CAPABILITIES (default "datatable:view")

	// Backup settings
	BackupSchedule   string // DATATABLE_BACKUP_SCHEDULE (cron spec; empty = disabled)
	BackupS3Bucket   string // DATATABLE_BACKUP_S3_BUCKET
	BackupS3Endpoint string // DATATABLE_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string // DATATABLE_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Key      string // DATATABLE_BACKUP_S3_KEY (default "datatable/savedsearches.jsonl")
}

// Load reads the configuration from the environment. Variables missing from
// the environment are taken from envFiles, or from DefaultEnvFile when none
// are given and it exists.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	c := &Config{
		DatabaseURL:      os.Getenv("DATATABLE_DATABASE_URL"),
		GRPCAddr:         envOrDefault("DATATABLE_GRPC_ADDR", ":9090"),
		HTTPAddr:         envOrDefault("DATATABLE_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("DATATABLE_NATS_URL"),
		AuthToken:        os.Getenv("DATATABLE_AUTH_TOKEN"),
		JWTSecret:        os.Getenv("DATATABLE_JWT_SECRET"),
		BackupSchedule:   strings.TrimSpace(os.Getenv("DATATABLE_BACKUP_SCHEDULE")),
		BackupS3Bucket:   os.Getenv("DATATABLE_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("DATATABLE_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("DATATABLE_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Key:      envOrDefault("DATATABLE_BACKUP_S3_KEY", "datatable/savedsearches.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATATABLE_DATABASE_URL is required")
	}

	loc, err := time.LoadLocation(envOrDefault("DATATABLE_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("DATATABLE_TIMEZONE: %w", err)
	}
	c.Location = loc

	c.DefaultCapabilities = splitList(envOrDefault("DATATABLE_DEFAULT_CAPABILITIES", "datatable:view"))

	if c.BackupSchedule != "" {
		if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
			return nil, fmt.Errorf("DATATABLE_BACKUP_SCHEDULE: %w", err)
		}
		if c.BackupS3Bucket == "" {
			return nil, fmt.Errorf("DATATABLE_BACKUP_SCHEDULE requires DATATABLE_BACKUP_S3_BUCKET")
		}
	}

	return c, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		files = []string{DefaultEnvFile}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
