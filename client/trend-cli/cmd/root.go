package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	httpclient "Trendline/backend/go/pkg/http"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "trend-cli",
	Short:        "A CLI client for the Trendline summary service",
	Long:         `A command-line interface for watching what changed, reading entity summaries and diffs, and submitting user activity.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TRENDLINE_SERVER", "http://localhost:8080"), "trend service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func client() *httpclient.Client {
	return httpclient.New(httpclient.WithTimeout(timeout), httpclient.WithUserAgent("trend-cli"))
}

func endpoint(parts ...string) string {
	return strings.TrimRight(serverURL, "/") + "/" + strings.Join(parts, "/")
}

func getJSON(ctx context.Context, out interface{}, parts ...string) error {
	return client().DoJSON(ctx, "GET", endpoint(parts...), nil, nil, out)
}
