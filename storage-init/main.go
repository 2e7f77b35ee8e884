package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"taskboard/config"
	"taskboard/domain"
	"taskboard/storage"
)

type initOptions struct {
	seedPath string
	reset    bool
}

func main() {
	configPath := flag.StringP("config", "c", os.Getenv("TASKBOARD_CONFIG"), "path to a YAML or JSONC config file")
	seed := flag.String("seed", "", "JSON snapshot {columns, authors, tasks} to write into the cache")
	reset := flag.Bool("reset", false, "delete the cached snapshot and fetch time")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("backend", cfg.Storage.Backend).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	kv, closeKV, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer closeKV()

	if err := run(ctx, kv, initOptions{seedPath: *seed, reset: *reset}, time.Now()); err != nil {
		log.Fatalf("storage init: %v", err)
	}
	log.Info("storage init complete")
}

// run resets and/or seeds the snapshot cache. Opening the backend already created its table.
func run(ctx context.Context, kv storage.KV, opts initOptions, now time.Time) error {
	if opts.reset {
		for _, key := range []string{storage.TaskDataKey, storage.LastFetchedKey} {
			if err := kv.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		log.Info("cached snapshot removed")
	}
	if opts.seedPath == "" {
		return nil
	}

	data, err := os.ReadFile(opts.seedPath)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var snap domain.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode seed %s: %w", opts.seedPath, err)
	}
	snap = snap.Normalized()

	cache := storage.NewSnapshotCache(kv)
	if err := cache.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := cache.MarkFetched(ctx, now); err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	log.WithFields(log.Fields{"tasks": len(snap.Tasks), "authors": len(snap.Authors)}).Info("snapshot seeded")
	return nil
}
