package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running adpulse server",
		Long: `Probes the health endpoint of a running adpulse server and prints its
status. Exits non-zero when the server is unreachable or unhealthy.`,
		RunE: runHealth,
	}
	cmd.Flags().String("url", "", "Server base URL (defaults to the configured listen address)")
	cmd.Flags().Duration("timeout", 5*time.Second, "Probe timeout")
	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	base, _ := cmd.Flags().GetString("url")
	if base == "" {
		base = listenURL(cfg.Server.Listen)
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("unreadable health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	fmt.Printf("status:        %v\n", body["status"])
	fmt.Printf("uptime:        %vs\n", body["uptime_seconds"])
	fmt.Printf("event clients: %v\n", body["event_clients"])
	return nil
}

// listenURL turns a listen address like ":8080" or "0.0.0.0:8080" into a
// probeable localhost base URL.
func listenURL(listen string) string {
	host, port, ok := strings.Cut(listen, ":")
	if !ok {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}
