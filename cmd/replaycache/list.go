package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rsclarke/replaycache/internal/models"
)

var listFlags struct {
	cacheConfig
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded requests",
	Long:  `List every recorded request with its occurrence, response status and authentication flags.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	addCacheFlags(listCmd, &listFlags.cacheConfig)
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := listFlags.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	requests, err := s.Requests(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(requests) == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-6s  %-7s  %-4s  %-8s  %-5s  %s\n", "ID", "METHOD", "OCC", "STATUS", "AUTH", "URL")
	for _, r := range requests {
		resp, err := s.FindResponse(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-6d  %-7s  %-4d  %-8s  %-5s  %s\n",
			r.ID, orDash(r.Method), r.Occurrence, statusLabel(resp), authLabel(r), r.URL)
	}
	return nil
}

func statusLabel(resp *models.StoredResponse) string {
	switch {
	case resp == nil:
		return "missing"
	case resp.Failure != nil:
		return "failed"
	default:
		return fmt.Sprint(resp.StatusCode)
	}
}

// authLabel renders the authentication flags as q, b and h, or "-".
func authLabel(r models.StoredRequest) string {
	var b strings.Builder
	if r.QueryHasAuth {
		b.WriteByte('q')
	}
	if r.BodyHasAuth {
		b.WriteByte('b')
	}
	if r.HeadersHasAuth {
		b.WriteByte('h')
	}
	return orDash(b.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
