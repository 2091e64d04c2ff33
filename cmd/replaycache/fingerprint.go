package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rsclarke/replaycache/internal/config"
	"github.com/rsclarke/replaycache/internal/fingerprint"
	"github.com/rsclarke/replaycache/internal/normalize"
)

var fingerprintFlags struct {
	method    string
	url       string
	body      string
	headers   []string
	rulesFile string
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Normalize a request and print its fingerprint",
	Long: `Normalize a request with the given rules and print the canonical form
and hash it would be stored and looked up under.`,
	Args: cobra.NoArgs,
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().StringVar(&fingerprintFlags.method, "method", http.MethodGet, "HTTP method")
	fingerprintCmd.Flags().StringVar(&fingerprintFlags.url, "url", "", "request URL")
	fingerprintCmd.Flags().StringVar(&fingerprintFlags.body, "body", "", "request body")
	fingerprintCmd.Flags().StringArrayVar(&fingerprintFlags.headers, "header", nil, `request header as "Name: value" (repeatable)`)
	fingerprintCmd.Flags().StringVar(&fingerprintFlags.rulesFile, "rules", getEnv("REPLAYCACHE_RULES", ""), "YAML normalization rules file")
	_ = fingerprintCmd.MarkFlagRequired("url")
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	var rules normalize.Rules
	if fingerprintFlags.rulesFile != "" {
		var err error
		rules, err = config.LoadRules(fingerprintFlags.rulesFile)
		if err != nil {
			return err
		}
	}

	header := http.Header{}
	for _, h := range fingerprintFlags.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	req := normalize.Request{
		Method: fingerprintFlags.method,
		URL:    fingerprintFlags.url,
		Header: header,
	}
	if fingerprintFlags.body != "" {
		req.Body = []byte(fingerprintFlags.body)
	}

	n, err := normalize.Normalize(req, rules)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hash:    %s\n", fingerprint.Hash(n))
	fmt.Fprintf(out, "method:  %s\n", n.Method)
	fmt.Fprintf(out, "url:     %s\n", n.URLNoQuery)
	fmt.Fprintf(out, "query:   %s\n", orDash(n.QueryString()))
	fmt.Fprintf(out, "body:    %s\n", orDash(string(n.Body)))
	fmt.Fprintf(out, "headers: %s\n", orDash(string(n.Headers)))
	fmt.Fprintf(out, "auth:    query=%t body=%t headers=%t\n", n.QueryHasAuth, n.BodyHasAuth, n.HeadersHasAuth)
	return nil
}
