package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/ragcache/auth"
	"github.com/jonwraymond/ragcache/server"
)

// The answer cache lives inside a running server, so these commands talk
// to its API.
func newCacheCmd() *cobra.Command {
	var (
		serverURL string
		apiKey    string
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear a running server's answer cache",
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show cache size, capacity and hit counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			var info server.CacheResponse
			if err := callServer(cmd.Context(), http.MethodGet, serverURL, apiKey, &info); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Entries:     %d/%d\nHits:        %d\nMisses:      %d\nHit ratio:   %.2f\nEvictions:   %d\nExpirations: %d\n",
				info.Size, info.Capacity, info.Stats.Hits, info.Stats.Misses, info.HitRatio,
				info.Stats.Evictions, info.Stats.Expirations)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := callServer(cmd.Context(), http.MethodDelete, serverURL, apiKey, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "ragcache server URL")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RAGCACHE_API_KEY"), "API key for the server")
	cmd.AddCommand(infoCmd, clearCmd)
	return cmd
}

func callServer(ctx context.Context, method, baseURL, apiKey string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(baseURL, "/")+"/v1/cache", nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e server.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
