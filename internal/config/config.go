package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the process reads from its environment.
type Config struct {
	Port     string
	DBPath   string
	LogLevel string
	LogJSON  bool

	Backup BackupConfig
}

// BackupConfig configures encrypted snapshots to S3-compatible storage.
// Backups stay disabled until bucket, credentials, and passphrase are set.
type BackupConfig struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	Passphrase    string
	RetentionDays int
}

// Load reads configuration from the environment, after loading a .env file
// if one is present next to the binary.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("CHORETALLY_PORT", "8080"),
		DBPath:   getEnv("CHORETALLY_DB_PATH", "choretally.db"),
		LogLevel: getEnv("CHORETALLY_LOG_LEVEL", "info"),
		LogJSON:  getEnv("CHORETALLY_LOG_FORMAT", "text") == "json",
		Backup: BackupConfig{
			Endpoint:   os.Getenv("CHORETALLY_S3_ENDPOINT"),
			Bucket:     os.Getenv("CHORETALLY_S3_BUCKET"),
			Region:     getEnv("CHORETALLY_S3_REGION", "auto"),
			AccessKey:  os.Getenv("CHORETALLY_S3_ACCESS_KEY"),
			SecretKey:  os.Getenv("CHORETALLY_S3_SECRET_KEY"),
			Passphrase: os.Getenv("CHORETALLY_BACKUP_PASSPHRASE"),
		},
	}

	retention, err := getEnvInt("CHORETALLY_BACKUP_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	cfg.Backup.RetentionDays = retention

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
