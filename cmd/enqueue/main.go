// Command enqueue feeds work item descriptors to the bot, either straight
// into the configured queue or through the event channel.
package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/ingest"
	"github.com/AliToori/TradeDeskBot/storage"
)

func main() {
	var (
		settings = pflag.StringP("config", "c", "BotRes/Settings.json", "settings file (JSON or YAML)")
		file     = pflag.StringP("file", "f", "", "read descriptors from this file, one per line")
		publish  = pflag.BoolP("publish", "p", false, "publish to the event channel instead of writing the queue")
	)
	pflag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*settings)
	if err != nil {
		log.Fatalf("✗ %v", err)
	}

	descriptors := pflag.Args()
	if *file != "" {
		lines, err := readDescriptors(*file)
		if err != nil {
			log.Fatalf("✗ %v", err)
		}
		descriptors = append(descriptors, lines...)
	}
	if len(descriptors) == 0 {
		log.Fatalf("✗ no descriptors given; pass them as arguments or with --file")
	}

	if *publish {
		pn, err := ingest.NewPubNub(cfg)
		if err != nil {
			log.Fatalf("✗ %v", err)
		}
		defer pn.Close()
		if err := pn.Publish(cfg.PubNubChannel, descriptors); err != nil {
			log.Fatalf("✗ publish: %v", err)
		}
		log.Printf("✓ published %d descriptors to %s", len(descriptors), cfg.PubNubChannel)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queue, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("✗ open queue: %v", err)
	}
	defer queue.Close()

	for _, d := range descriptors {
		item, err := queue.Enqueue(ctx, d)
		if err != nil {
			log.Fatalf("✗ enqueue %q: %v", d, err)
		}
		log.Printf("✓ item %d: %s", item.ID, item.Descriptor)
	}
	if pending, err := queue.Pending(ctx); err == nil {
		log.Printf("%d work items pending", pending)
	}
}

func readDescriptors(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
