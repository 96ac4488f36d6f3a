package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/fmrank/internal/cli"
	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/spf13/cobra"
)

type predictOptions struct {
	tasks     string
	facts     []string
	k         int
	serverURL string
	handle    string
	output    string
	quiet     bool
	engine    string
	model     string
}

// predictBody is the JSON body of POST /api/v1/predict.
type predictBody struct {
	Tasks  []uint32 `json:"tasks"`
	Keys   []uint32 `json:"keys"`
	Values []int32  `json:"values"`
	K      *int     `json:"k,omitempty"`
	Quiet  bool     `json:"quiet,omitempty"`
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Rank candidate tasks for one set of facts",
		Example: `  fmrank predict --tasks 10,20,30 --fact 5=2 --fact 6=1 -k 2
  fmrank predict --server http://localhost:8080 --tasks 10,20,30 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(opts.output)
			if err != nil {
				return err
			}
			body, err := buildPredictBody(opts, cmd.Flags().Changed("k"))
			if err != nil {
				return err
			}

			var resp *models.PredictResponse
			if opts.serverURL != "" {
				resp, err = predictViaHTTP(opts.serverURL, opts.handle, body)
			} else {
				resp, err = predictDirect(cmd.Context(), root, opts, body)
			}
			if err != nil {
				return err
			}
			return cli.WriteResults(cmd.OutOrStdout(), resp, format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.tasks, "tasks", "", "comma-separated candidate task ids")
	f.StringArrayVar(&opts.facts, "fact", nil, "known fact as key=value (repeatable)")
	f.IntVarP(&opts.k, "k", "k", 10, "number of results")
	f.StringVar(&opts.serverURL, "server", "", "server URL (empty = load the engine in-process)")
	f.StringVar(&opts.handle, "handle", "", "engine handle on the server (empty = default engine)")
	f.StringVar(&opts.output, "output", "text", "output format: text, compact or json")
	f.BoolVar(&opts.quiet, "quiet", false, "silence engine logging for this call")
	f.StringVar(&opts.engine, "engine", "", "engine type for in-process mode: onnx or mock (overrides config)")
	f.StringVar(&opts.model, "model", "", "model path for in-process mode (overrides config)")
	_ = cmd.MarkFlagRequired("tasks")
	return cmd
}

// buildPredictBody parses the task and fact flags. K is sent only when set explicitly.
func buildPredictBody(opts *predictOptions, kSet bool) (*predictBody, error) {
	tasks, err := cli.ParseTasks(opts.tasks)
	if err != nil {
		return nil, err
	}
	keys, values, err := cli.ParseFacts(opts.facts)
	if err != nil {
		return nil, err
	}
	body := &predictBody{Tasks: tasks, Keys: keys, Values: values, Quiet: opts.quiet}
	if kSet {
		k := opts.k
		body.K = &k
	}
	return body, nil
}

// predictDirect initializes an engine, predicts once and disposes it.
func predictDirect(ctx context.Context, root *rootOptions, opts *predictOptions, body *predictBody) (*models.PredictResponse, error) {
	cfg, logger, err := setup(root)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	if opts.engine != "" {
		cfg.Engine.Type = opts.engine
	}
	if opts.model != "" {
		cfg.Engine.ModelPath = opts.model
	}
	if cfg.Engine.Type == string(engine.TypeMock) && opts.model == "" {
		cfg.Engine.ModelPath = ""
	}
	cfg.Engine.Quiet = cfg.Engine.Quiet || opts.quiet

	components, err := initializeComponents(cfg, logger, false)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	k := cfg.Predict.K()
	if body.K != nil {
		k = *body.K
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return components.Pipeline.PredictArrays(ctx, components.Default, body.Tasks, body.Keys, body.Values, k)
}

func predictViaHTTP(serverURL, handle string, body *predictBody) (*models.PredictResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(serverURL, "/") + "/api/v1/predict"
	if handle != "" {
		url = strings.TrimRight(serverURL, "/") + "/api/v1/engines/" + handle + "/predict"
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out models.PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
