// Package config reads process settings from flags, falling back to
// PRINTFLOW_* environment variables.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"printflow/internal/report"
	"printflow/internal/upload"
)

type Config struct {
	Addr         string
	DBPath       string
	RolesFile    string
	OverdueCron  string
	RateLimit    float64 // mutating requests per second per actor, 0 disables
	RateBurst    int
	LogLevel     string
	LogJSON      bool
	Debug        bool
	ShutdownWait time.Duration
	AdminEmail   string // seeds an admin employee into an empty database
	Upload       upload.Config
}

// Load parses args (without the program name).
func Load(args []string) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("printflow", flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", getenv("PRINTFLOW_ADDR", ":8080"), "HTTP bind address")
	fs.StringVar(&c.DBPath, "db", getenv("PRINTFLOW_DB", "printflow.db"), "SQLite DB path")
	fs.StringVar(&c.RolesFile, "roles", getenv("PRINTFLOW_ROLES", ""), "YAML file with role grants")
	fs.StringVar(&c.OverdueCron, "overdue-cron", getenv("PRINTFLOW_OVERDUE_CRON", "*/15 * * * *"), "cron expression for the overdue sweep; empty disables")
	fs.Float64Var(&c.RateLimit, "rate-limit", getenvFloat("PRINTFLOW_RATE_LIMIT", 5), "mutating requests per second per actor; 0 disables")
	fs.IntVar(&c.RateBurst, "rate-burst", getenvInt("PRINTFLOW_RATE_BURST", 10), "rate limiter burst")
	fs.StringVar(&c.LogLevel, "log-level", getenv("PRINTFLOW_LOG_LEVEL", "info"), "log level")
	fs.BoolVar(&c.LogJSON, "log-json", getenvBool("PRINTFLOW_LOG_JSON", false), "log JSON instead of console output")
	fs.BoolVar(&c.Debug, "debug", getenvBool("PRINTFLOW_DEBUG", false), "expose pprof endpoints")
	fs.StringVar(&c.AdminEmail, "admin-email", getenv("PRINTFLOW_ADMIN_EMAIL", ""), "email of the admin created when no employees exist")
	fs.DurationVar(&c.ShutdownWait, "shutdown-wait", 5*time.Second, "graceful shutdown timeout")
	fs.StringVar(&c.Upload.Endpoint, "minio-endpoint", getenv("PRINTFLOW_MINIO_ENDPOINT", ""), "MinIO endpoint for artwork uploads; empty disables")
	fs.StringVar(&c.Upload.Bucket, "minio-bucket", getenv("PRINTFLOW_MINIO_BUCKET", "printflow-artwork"), "MinIO bucket")
	fs.BoolVar(&c.Upload.UseSSL, "minio-ssl", getenvBool("PRINTFLOW_MINIO_USE_SSL", false), "use TLS for MinIO")
	fs.StringVar(&c.Upload.PublicURL, "minio-public-url", getenv("PRINTFLOW_MINIO_PUBLIC_URL", ""), "base URL for uploaded objects")
	c.Upload.AccessKey = getenv("PRINTFLOW_MINIO_ACCESS_KEY", "")
	c.Upload.SecretKey = getenv("PRINTFLOW_MINIO_SECRET_KEY", "")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.OverdueCron != "" {
		if err := report.ValidateCronExpression(c.OverdueCron); err != nil {
			return fmt.Errorf("invalid overdue cron %q: %w", c.OverdueCron, err)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
