package main

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
)

var statsFlags struct {
	cacheConfig
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a cache by host and method",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	addCacheFlags(statsCmd, &statsFlags.cacheConfig)
}

type statsKey struct {
	host   string
	method string
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := statsFlags.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	requests, err := s.Requests(ctx)
	if err != nil {
		return err
	}

	counts := make(map[statsKey]int)
	for _, r := range requests {
		host := r.URLNoQuery
		if u, err := url.Parse(r.URLNoQuery); err == nil && u.Host != "" {
			host = u.Host
		}
		counts[statsKey{host: host, method: orDash(r.Method)}]++
	}

	keys := make([]statsKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].host != keys[j].host {
			return keys[i].host < keys[j].host
		}
		return keys[i].method < keys[j].method
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d requests\n", len(requests))
	for _, k := range keys {
		fmt.Fprintf(out, "%6d  %-7s  %s\n", counts[k], k.method, k.host)
	}
	return nil
}
