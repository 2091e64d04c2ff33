package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var showFlags struct {
	cacheConfig
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded request and its response",
	Long:  `Show one recorded request/response pair. JSON bodies and headers are pretty-printed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	addCacheFlags(showCmd, &showFlags.cacheConfig)
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	s, err := showFlags.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	req, err := s.Request(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("request %d not found", id)
	}
	resp, err := s.FindResponse(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Request %d\n", req.ID)
	fmt.Fprintf(out, "  %s %s\n", orDash(req.Method), req.URL)
	fmt.Fprintf(out, "  hash:       %s\n", req.Hash)
	fmt.Fprintf(out, "  occurrence: %d\n", req.Occurrence)
	fmt.Fprintf(out, "  auth:       %s\n", authLabel(*req))
	printBlock(out, "headers", req.Headers)
	printBlock(out, "body", req.Body)

	fmt.Fprintln(out)
	if resp == nil {
		fmt.Fprintln(out, "Response missing")
		return nil
	}
	fmt.Fprintf(out, "Response %d\n", resp.ID)
	if resp.Failure != nil {
		fmt.Fprintf(out, "  failure: %s\n", resp.Failure.Error())
		return nil
	}
	fmt.Fprintf(out, "  status: %d\n", resp.StatusCode)
	printBlock(out, "headers", resp.Headers)
	printBlock(out, "body", resp.Data)
	return nil
}

func printBlock(out io.Writer, label string, data []byte) {
	if len(data) == 0 {
		fmt.Fprintf(out, "  %s: (none)\n", label)
		return
	}
	fmt.Fprintf(out, "  %s:\n", label)
	if gjson.ValidBytes(data) {
		fmt.Fprintln(out, gjson.GetBytes(data, "@pretty").Raw)
		return
	}
	fmt.Fprintln(out, string(data))
}
