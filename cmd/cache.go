package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ledgercache/ledgercache/log"
)

func newCacheCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "cache",
		Short: "Performs cache operations",
	}
	c.AddCommand(&cobra.Command{
		Use:     "flush",
		Args:    cobra.NoArgs,
		Aliases: []string{"clear"},
		Short:   "Flush cache",
		RunE:    flushCache,
	})
	c.AddCommand(&cobra.Command{
		Use:   "stats",
		Args:  cobra.NoArgs,
		Short: "Print size and configuration of the cache",
		RunE:  cacheStats,
	})

	return c
}

func flushCache(_ *cobra.Command, _ []string) error {
	if err := newClient().Flush(context.Background()); err != nil {
		return err
	}

	log.Log().Info("OK")

	return nil
}

func cacheStats(_ *cobra.Command, _ []string) error {
	stats, err := newClient().Stats(context.Background())
	if err != nil {
		return err
	}

	ttl := stats.EntryTTL
	if ttl == "" {
		ttl = "never expires"
	}

	log.Log().Infof("size = %d", stats.Size)
	log.Log().Infof("capacity = %s", formatCapacity(stats.Capacity))
	log.Log().Infof("entryTTL = %s", ttl)

	return nil
}

func formatCapacity(capacity uint64) string {
	if capacity == 0 {
		return "unbounded"
	}

	return strconv.FormatUint(capacity, 10)
}
