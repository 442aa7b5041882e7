package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/ingest"
	"github.com/AliToori/TradeDeskBot/services"
	"github.com/AliToori/TradeDeskBot/storage"
	"github.com/AliToori/TradeDeskBot/utils"
)

func main() {
	settings := pflag.StringP("config", "c", "BotRes/Settings.json", "settings file (JSON or YAML)")
	pflag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠ .env: %v", err)
	}

	cfg, err := config.Load(*settings)
	if err != nil {
		log.Fatalf("✗ %v", err)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("✗ Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	log.Printf("╔═══════════════════════════════════════════════════╗")
	log.Printf("║           TradeDesk Checkout Bot                  ║")
	log.Printf("╚═══════════════════════════════════════════════════╝")
	log.Printf("Account  : %s", cfg.Credentials.ID)
	log.Printf("Workers  : %d browser instances", cfg.InstanceCount)
	log.Printf("Wait     : %s per work item", cfg.WaitForTicket)
	log.Printf("Queue    : %s", queueLabel(cfg))
	log.Printf("Channel  : %s", cfg.PubNubChannel)
	log.Printf("Report   : %s", cfg.ReportFile)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := storage.Open(rootCtx, cfg)
	if err != nil {
		log.Fatalf("✗ Failed to open work queue: %v", err)
	}
	defer queue.Close()

	var (
		g        errgroup.Group
		listener *ingest.Listener
	)
	transport, err := ingest.NewPubNub(cfg)
	if err != nil {
		log.Printf("⚠ Ingestion disabled: %v", err)
	} else {
		listener = ingest.NewListener(transport, queue, cfg.PubNubChannel)
		g.Go(func() error {
			return listener.Run(rootCtx)
		})
	}

	started := time.Now()
	results := services.RunAll(rootCtx, cfg, queue, services.ChromeSessions(cfg))

	// Workers only return on shutdown or when every one of them has failed.
	stop()
	if err := g.Wait(); err != nil {
		log.Printf("⚠ listener: %v", err)
	}

	total, err := utils.WriteJSON(cfg.ReportFile, results)
	if err != nil {
		log.Printf("✗ Failed to write report: %v", err)
	}

	log.Printf("═══════════════════════════════════════════════════")
	log.Printf("  DONE — ran %s, %d attempts → %s", time.Since(started).Round(time.Second), total, cfg.ReportFile)
	pendingCtx, cancelPending := context.WithTimeout(context.Background(), 10*time.Second)
	if pending, err := queue.Pending(pendingCtx); err != nil {
		log.Printf("  QUEUE — ⚠ %v", err)
	} else {
		log.Printf("  QUEUE — %d work items still pending", pending)
	}
	cancelPending()
	if listener != nil {
		s := listener.Stats()
		log.Printf("  INGEST — %d messages, %d queued, %d failed", s.Messages, s.Enqueued, s.Failed)
	}
	for _, r := range results {
		status := fmt.Sprintf("%d items, %d attempts", r.ItemsClaimed, len(r.Attempts))
		if r.Err != nil {
			status += " | ERROR: " + r.Err.Error()
		}
		log.Printf("    worker %-4d %s", r.WorkerID, status)
	}

	stats := utils.BuildSummaryStats(results)
	log.Printf("  STATS")
	log.Printf("    Items Claimed          : %d", stats.ItemsClaimed)
	log.Printf("    Items Abandoned        : %d", stats.ItemsAbandoned)
	log.Printf("    Checkout Attempts      : %d", stats.TotalAttempts)
	log.Printf("    Completed / Cancelled  : %d / %d", stats.Completed, stats.Cancelled)
	log.Printf("    Abandoned Attempts     : %d", stats.Abandoned)
	log.Printf("    Total Spend            : %.2f", stats.TotalSpend)
	if stats.Completed > 0 {
		log.Printf("    Average Price          : %.2f", stats.AveragePrice)
		log.Printf("    Minimum Price          : %.2f", stats.MinimumPrice)
		log.Printf("    Maximum Price          : %.2f", stats.MaximumPrice)
	}

	log.Printf("    Purchases per Worker")
	for _, w := range stats.AttemptsPerWorker {
		log.Printf("      - worker %d: %d of %d items", w.WorkerID, w.Completed, w.Claimed)
	}

	if len(stats.LatestPurchases) > 0 {
		log.Printf("    Latest Purchases")
		for i, a := range stats.LatestPurchases {
			log.Printf("      %d) $%.2f | ticket %s | item %d", i+1, *a.VerifiedPrice, a.ListingID, a.WorkItemID)
		}
	}
	log.Printf("═══════════════════════════════════════════════════")
}

func queueLabel(cfg config.Config) string {
	switch cfg.QueueBackend {
	case "sqlite":
		return "sqlite " + cfg.SQLitePath
	case "postgres":
		return fmt.Sprintf("postgres %s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	return "csv " + cfg.QueueFile
}
