package main

import (
	"github.com/spf13/cobra"

	"github.com/rsclarke/replaycache/internal/store"
)

type cacheConfig struct {
	dbPath string
}

func addCacheFlags(cmd *cobra.Command, cfg *cacheConfig) {
	cmd.Flags().StringVar(&cfg.dbPath, "db", getEnv("REPLAYCACHE_DB", "replaycache.db"), "cache file path")
}

// open opens the cache read-only. Reads from a missing file fail with
// store.ErrCacheDoesNotExist.
func (cfg *cacheConfig) open() (*store.Store, error) {
	return store.Open(cfg.dbPath, store.ModePlayback, logger)
}
