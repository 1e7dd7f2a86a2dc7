// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// EndpointStatus holds the probe result for one portal endpoint.
type EndpointStatus struct {
	Endpoint string `json:"endpoint"`
	URL      string `json:"url"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	portalURL  string
	metricsURL string
	jsonOutput bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running portal server",
		Long:  `Probe the portal and observability endpoints of a running server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.portalURL, "portal-url", "http://127.0.0.1:8080", "portal base URL")
	cmd.Flags().StringVar(&cfg.metricsURL, "metrics-url", "http://127.0.0.1:9100", "observability base URL")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := &http.Client{Timeout: 5 * time.Second}

	statuses := []EndpointStatus{
		probe(client, "portal", strings.TrimRight(cfg.portalURL, "/")+"/health"),
		probe(client, "liveness", strings.TrimRight(cfg.metricsURL, "/")+"/healthz/liveness"),
		probe(client, "readiness", strings.TrimRight(cfg.metricsURL, "/")+"/healthz/readiness"),
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Endpoint < statuses[j].Endpoint })

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tHEALTHY\tDETAIL")
	for _, s := range statuses {
		detail := s.URL
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", s.Endpoint, s.Healthy, detail)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to format table: %w", err)
	}
	cmd.Println(sb.String())
	return nil
}

// probe performs one GET and records the outcome.
func probe(client *http.Client, name, url string) EndpointStatus {
	status := EndpointStatus{Endpoint: name, URL: url}

	resp, err := client.Get(url)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return status
	}
	status.Healthy = true
	return status
}
