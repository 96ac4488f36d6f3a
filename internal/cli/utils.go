// Package cli provides CLI utilities for fmrank: argument parsing and result output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/fmrank/internal/models"
)

// OutputFormat is the format for prediction output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one "task score" pair per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, compact or json)", s)
	}
}

// WriteResults writes a prediction response to w in the given format.
func WriteResults(w io.Writer, resp *models.PredictResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputCompact:
		for _, c := range resp.Results {
			if _, err := fmt.Fprintf(w, "%d %s\n", c.Task, formatScore(c.Score)); err != nil {
				return err
			}
		}
		return nil
	default:
		writeResultsText(w, resp)
		return nil
	}
}

func writeResultsText(w io.Writer, resp *models.PredictResponse) {
	fmt.Fprintf(w, "\nTop %d of %d tasks (%d facts) in %dms\n\n",
		len(resp.Results), resp.Candidates, resp.Facts, resp.TookMs)
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	fmt.Fprintf(w, "%-6s %-12s %s\n", "RANK", "TASK", "SCORE")
	for i, c := range resp.Results {
		fmt.Fprintf(w, "%-6d %-12d %s\n", i+1, c.Task, formatScore(c.Score))
	}
}

func formatScore(s float32) string {
	return strconv.FormatFloat(float64(s), 'f', 6, 32)
}

// ParseTasks parses a comma-separated list of task ids, e.g. "10,20,30".
func ParseTasks(s string) ([]uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	tasks := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid task id %q: %w", p, err)
		}
		tasks = append(tasks, uint32(v))
	}
	return tasks, nil
}

// ParseFacts parses "key=value" pairs into parallel key and value arrays.
func ParseFacts(pairs []string) ([]uint32, []int32, error) {
	keys := make([]uint32, 0, len(pairs))
	values := make([]int32, 0, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, nil, fmt.Errorf("invalid fact %q: want key=value", pair)
		}
		key, err := strconv.ParseUint(strings.TrimSpace(k), 10, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid fact key %q: %w", k, err)
		}
		val, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid fact value %q: %w", v, err)
		}
		keys = append(keys, uint32(key))
		values = append(values, int32(val))
	}
	return keys, values, nil
}
