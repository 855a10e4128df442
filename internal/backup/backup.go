package backup

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"

	"github.com/mwpeters/choretally/internal/clock"
	"github.com/mwpeters/choretally/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3            S3Config
	DBPath        string
	Passphrase    string
	RetentionDays int
}

// Manager uploads encrypted database snapshots to S3-compatible storage.
// It has no loop of its own: the job coordinator calls Run on schedule.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	clock   clock.Clock
	logger  *slog.Logger
}

// NewManager creates a backup manager. It is disabled until the S3 bucket,
// credentials, and passphrase are all configured.
func NewManager(cfg Config, db *sql.DB, backups *store.BackupStore, clk clock.Clock, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: backups,
		clock:   clk,
		logger:  logger.With("component", "backup"),
	}
	if m.Enabled() {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the manager has enough configuration to run.
func (m *Manager) Enabled() bool {
	return m.cfg.S3.Bucket != "" && m.cfg.S3.AccessKey != "" &&
		m.cfg.S3.SecretKey != "" && m.cfg.Passphrase != ""
}

// Run takes one snapshot: checkpoint the WAL, copy the database, encrypt the
// copy, upload it, record it, and prune expired backups. No-op when disabled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	now := m.clock.Now()
	objectKey := fmt.Sprintf("backups/choretally-%s.db.enc", now.UTC().Format("2006-01-02T150405Z"))

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return err
	}

	encrypted, err := Encrypt(snapshot, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	if err := m.upload(ctx, objectKey, encrypted); err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}

	record, err := m.backups.Create(objectKey, int64(len(encrypted)), now)
	if err != nil {
		return fmt.Errorf("record backup: %w", err)
	}
	m.logger.Info("backup uploaded", "key", objectKey, "size_bytes", record.SizeBytes)

	if err := m.cleanup(ctx, now); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
	return nil
}

// snapshot checkpoints the WAL and returns a copy of the database file.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("wal checkpoint: %w", err)
	}
	data, err := os.ReadFile(m.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}
	return data, nil
}

// upload puts the object with fibonacci backoff so a flaky connection does
// not lose the nightly snapshot.
func (m *Manager) upload(ctx context.Context, key string, data []byte) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	backoff := retry.WithMaxRetries(4, retry.NewFibonacci(time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			m.logger.Warn("backup upload attempt failed", "key", key, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (m *Manager) cleanup(ctx context.Context, now time.Time) error {
	retention := m.cfg.RetentionDays
	if retention <= 0 {
		retention = 30
	}

	keys, err := m.backups.DeleteOlderThan(now.AddDate(0, 0, -retention))
	if err != nil {
		return err
	}

	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Error("delete remote backup failed", "key", key, "error", err)
		}
	}
	return nil
}

// Restore downloads a backup, decrypts it, validates it, and replaces the
// database file. The caller must restart the process afterwards so the new
// file is reopened.
func (m *Manager) Restore(ctx context.Context, backupID int64) error {
	if !m.Enabled() {
		return fmt.Errorf("backup not configured")
	}

	record, err := m.backups.GetByID(backupID)
	if err != nil {
		return fmt.Errorf("get backup: %w", err)
	}
	if record == nil {
		return fmt.Errorf("backup %d not found", backupID)
	}

	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download backup: %w", err)
	}
	defer result.Body.Close()

	encrypted, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	plaintext, err := Decrypt(encrypted, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}

	restored := filepath.Join(os.TempDir(), fmt.Sprintf("choretally-restore-%d.db", backupID))
	defer os.Remove(restored)
	if err := os.WriteFile(restored, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(restored); err != nil {
		return err
	}

	if err := os.WriteFile(m.cfg.DBPath, plaintext, 0600); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(m.cfg.DBPath + "-wal")
	os.Remove(m.cfg.DBPath + "-shm")

	m.logger.Info("restore complete, restart required", "backup_id", backupID)
	return nil
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	return nil
}
