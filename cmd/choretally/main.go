package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwpeters/choretally/internal/backup"
	"github.com/mwpeters/choretally/internal/clock"
	"github.com/mwpeters/choretally/internal/config"
	"github.com/mwpeters/choretally/internal/database"
	"github.com/mwpeters/choretally/internal/engine"
	"github.com/mwpeters/choretally/internal/events"
	"github.com/mwpeters/choretally/internal/jobs"
	"github.com/mwpeters/choretally/internal/logging"
	"github.com/mwpeters/choretally/internal/store"
	"github.com/mwpeters/choretally/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogJSON)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	clk := clock.NewReal()
	eng := engine.New(db, clk, logger)

	hub := websocket.NewHub(logger)
	dispatcher := events.NewDispatcher(eng.Events(), clk, logger)
	dispatcher.AddSink(hub)

	backups := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		},
		DBPath:        cfg.DBPath,
		Passphrase:    cfg.Backup.Passphrase,
		RetentionDays: cfg.Backup.RetentionDays,
	}, db, store.NewBackupStore(db), clk, logger)

	coordinator := jobs.NewCoordinator(clk, logger)
	coordinator.Register("generate_instances", jobs.DailyAt{Hour: 0, Minute: 0}, func() error {
		_, err := eng.GenerateInstances()
		return err
	})
	coordinator.Register("expire_reward_claims", jobs.DailyAt{Hour: 0, Minute: 1}, func() error {
		_, err := eng.ExpireRewardClaims()
		return err
	})
	coordinator.Register("auto_approve", jobs.Every(5*time.Minute), func() error {
		_, err := eng.AutoApproveInstances()
		return err
	})
	coordinator.Register("mark_missed", jobs.HourlyAt{Minute: 30}, func() error {
		_, err := eng.MarkMissedInstances()
		return err
	})
	coordinator.Register("audit_balances", jobs.DailyAt{Hour: 2, Minute: 0}, func() error {
		_, err := eng.AuditBalances()
		return err
	})
	if backups.Enabled() {
		coordinator.Register("backup", jobs.DailyAt{Hour: 3, Minute: 0}, func() error {
			return backups.Run(context.Background())
		})
	}

	// Catch up on anything missed while the process was down.
	if n, err := eng.GenerateInstances(); err != nil {
		logger.Error("startup generation failed", "error", err)
	} else if n > 0 {
		logger.Info("startup generation", "instances_created", n)
	}

	ctx := context.Background()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	coordinator.Start(ctx)
	defer coordinator.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", websocket.HandleWebSocket(hub, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Choretally running at http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
