package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Engines        int    `json:"engines"`
	DefaultHandle  string `json:"default_handle"`
	ONNXAvailable  bool   `json:"onnx_available"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Predictions    *int64 `json:"predictions,omitempty"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
	Config         *struct {
		EngineType   string `json:"engine_type"`
		ModelPath    string `json:"model_path"`
		DefaultK     int    `json:"default_k"`
		MaxK         int    `json:"max_k"`
		DatabasePath string `json:"database_path"`
		WatchModel   bool   `json:"watch_model"`
	} `json:"config,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := statusViaHTTP(serverURL)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), status, output)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func writeStatus(w io.Writer, status *statusResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		fmt.Fprintf(w, "engines:            %d   # live engine handles\n", status.Engines)
		fmt.Fprintf(w, "default_handle:     %s\n", status.DefaultHandle)
		fmt.Fprintf(w, "onnx_available:     %t\n", status.ONNXAvailable)
		fmt.Fprintf(w, "uptime_seconds:     %d\n", status.UptimeSeconds)
		if status.Predictions != nil {
			fmt.Fprintf(w, "predictions:        %d   # logged predictions\n", *status.Predictions)
		}
		if status.DiskUsageBytes != nil {
			fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
		if c := status.Config; c != nil {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "# configuration")
			fmt.Fprintf(w, "engine_type:        %s\n", c.EngineType)
			if c.ModelPath != "" {
				fmt.Fprintf(w, "model_path:         %s\n", c.ModelPath)
			}
			fmt.Fprintf(w, "default_k:          %d\n", c.DefaultK)
			fmt.Fprintf(w, "max_k:              %d\n", c.MaxK)
			fmt.Fprintf(w, "watch_model:        %t\n", c.WatchModel)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
}
