// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/memberauth/memberauth/internal/config"
	"github.com/memberauth/memberauth/internal/observability"
)

// ProcessStatus holds the status information for a running server.
type ProcessStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	// Failing lists backends whose readiness check failed.
	Failing []string `json:"failing,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	metricsAddr string
	jsonOutput  bool
	timeout     time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running memberauth server",
		Long:  `Query the liveness and readiness probes of a running server's metrics listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", config.Default().Metrics.Addr, "metrics/health address of the server")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "probe timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}
	status := queryProcessStatus(commandContext(cmd), client, cfg.metricsAddr)

	var output string
	if cfg.jsonOutput {
		var err error
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryProcessStatus probes the health endpoints at addr.
func queryProcessStatus(ctx context.Context, client *http.Client, addr string) ProcessStatus {
	status := ProcessStatus{Addr: addr}

	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	code, err := probe(ctx, client, base+"/healthz/liveness", nil)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = code == http.StatusOK
	if !status.Running {
		status.Error = fmt.Sprintf("liveness returned %d", code)
		return status
	}

	var report observability.Report
	code, err = probe(ctx, client, base+"/healthz/readiness", &report)
	if err != nil {
		// Live but readiness unreachable still counts as running.
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = code == http.StatusOK && report.Ready
	status.Failing = report.Failing()
	return status
}

// probe GETs url and decodes a JSON body into into when into is non-nil.
func probe(ctx context.Context, client *http.Client, url string, into any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err //nolint:wrapcheck // reported as text
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err //nolint:wrapcheck // reported as text
	}
	defer func() { _ = resp.Body.Close() }()
	if into == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
	}
	return resp.StatusCode, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProcessStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDRESS\tSTATUS\tREADY\tDETAIL")
	_, _ = fmt.Fprintln(w, "-------\t------\t-----\t------")

	state := "stopped"
	if status.Running {
		state = "running"
	}
	ready := "-"
	if status.Running {
		ready = "no"
		if status.Ready {
			ready = "yes"
		}
	}
	detail := status.Error
	if len(status.Failing) > 0 {
		detail = "failing: " + strings.Join(status.Failing, ",")
	}
	if detail == "" {
		detail = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status.Addr, state, ready, detail)

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
