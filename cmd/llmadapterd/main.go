// Command llmadapterd is the external process collaborator for the
// llmadapter library: it reads one LLMCallSpec as JSON, drives it
// through a Coordinator, and writes the result back on stdout — a
// cobra CLI grounded on opense.ai's cmd/openseai/main.go command
// structure.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/coordinator"
	"github.com/taipm/llmadapter/mcp"
	"github.com/taipm/llmadapter/telemetry"
	"github.com/taipm/llmadapter/vectorctx"
	"github.com/taipm/llmadapter/vectorctx/embedding"
	"github.com/taipm/llmadapter/vectorctx/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var cfg *daemonConfig

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "llmadapterd: warning: loading .env: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "llmadapterd",
	Short: "llmadapterd drives LLMCallSpec documents through a provider-agnostic coordinator",
	Long: `llmadapterd is the process-based collaborator for the llmadapter
library's Run/RunStream API: it reads a JSON LLMCallSpec from a file or
stdin, executes it against whichever providers the spec names, and
reports the result as JSON (blocking) or NDJSON (streaming).`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := loadConfig(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "daemon config file (YAML); defaults apply when omitted")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("spec", "", "path to a JSON LLMCallSpec file; reads stdin when omitted")
	runCmd.Flags().Bool("stream", false, "drive the spec through RunStream and emit NDJSON events instead of one JSON response")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("llmadapterd %s (commit %s, built %s)\n", version, commit, date)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "execute one LLMCallSpec and report its result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		specPath, _ := cmd.Flags().GetString("spec")
		streaming, _ := cmd.Flags().GetBool("stream")

		spec, err := readSpec(specPath)
		if err != nil {
			return fmt.Errorf("reading spec: %w", err)
		}
		applyEnvOverrides(&spec)

		coord, err := buildCoordinator(cmd.Context())
		if err != nil {
			return fmt.Errorf("building coordinator: %w", err)
		}
		defer coord.Close()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		if streaming {
			return runStreaming(ctx, coord, spec)
		}
		return runBlocking(ctx, coord, spec)
	},
}

// readSpec decodes an LLMCallSpec from path, or stdin when path is
// empty — spec.md §6's "--spec <file> or stdin" contract.
func readSpec(path string) (llmadapter.LLMCallSpec, error) {
	var r io.Reader
	if path == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return llmadapter.LLMCallSpec{}, err
		}
		defer f.Close()
		r = f
	}

	var spec llmadapter.LLMCallSpec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return llmadapter.LLMCallSpec{}, fmt.Errorf("decoding LLMCallSpec: %w", err)
	}
	return spec, nil
}

// applyEnvOverrides fills in settings.batchId from LLM_ADAPTER_BATCH_ID
// when the spec itself left it unset, so a process-level batch tag
// doesn't have to be threaded through every caller's JSON.
func applyEnvOverrides(spec *llmadapter.LLMCallSpec) {
	if spec.Settings.BatchID == "" {
		spec.Settings.BatchID = os.Getenv("LLM_ADAPTER_BATCH_ID")
	}
}

// buildCoordinator wires a Coordinator from daemon config and the
// LLM_ADAPTER_* environment variables spec.md §6 names: exchange-log
// directory/rotation, MCP server connections, and (if configured) a
// vector context injector over a Qdrant store.
func buildCoordinator(ctx context.Context) (*coordinator.Coordinator, error) {
	logger := telemetry.NewSlogLogger(slog.Default())

	opts := []coordinator.Option{coordinator.WithLogger(logger)}

	if disableFileLogsEnv() || cfg.DisableFileLogs {
		opts = append(opts, coordinator.WithExchangeLogsDisabled())
	} else if dir := batchDirOverride(); dir != "" {
		opts = append(opts, coordinator.WithExchangeLogDir(dir, cfg.MaxSinkSizeMB, cfg.MaxSinkBackups))
	} else if cfg.ExchangeLogDir != "" {
		opts = append(opts, coordinator.WithExchangeLogDir(cfg.ExchangeLogDir, cfg.MaxSinkSizeMB, cfg.MaxSinkBackups))
	}

	if len(cfg.MCPServers) > 0 {
		mgr := mcp.NewManager(slog.Default())
		for _, sc := range cfg.MCPServers {
			if err := mgr.Connect(ctx, mcp.ServerConfig{ID: sc.ID, Command: sc.Command, Args: sc.Args, Env: sc.Env}); err != nil {
				return nil, fmt.Errorf("connecting MCP server %q: %w", sc.ID, err)
			}
		}
		opts = append(opts, coordinator.WithMCPManager(mgr))
	}

	if cfg.Vector.QdrantURL != "" {
		stores := map[string]store.Store{"default": store.NewQdrant(cfg.Vector.QdrantURL, cfg.Vector.QdrantAPIKey)}
		embedder := embedding.NewOpenAI(os.Getenv("OPENAI_API_KEY"), cfg.Vector.EmbedModel)
		opts = append(opts, coordinator.WithVectorInjector(vectorctx.New(stores, embedder, slog.Default())))
	}

	return coordinator.New(opts...), nil
}

func disableFileLogsEnv() bool {
	return os.Getenv("LLM_ADAPTER_DISABLE_FILE_LOGS") == "1"
}

func batchDirOverride() string {
	return os.Getenv("LLM_ADAPTER_BATCH_DIR")
}

// runBlocking drives spec through Coordinator.Run and writes one JSON
// LLMResponse to stdout.
func runBlocking(ctx context.Context, coord *coordinator.Coordinator, spec llmadapter.LLMCallSpec) error {
	resp, err := coord.Run(ctx, spec)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(resp)
}

// runStreaming drives spec through Coordinator.RunStream and writes
// one JSON Event per line (NDJSON) to stdout, per spec.md §6. A
// mid-stream error is written as the final line's "error" field and
// returned so main exits non-zero.
func runStreaming(ctx context.Context, coord *coordinator.Coordinator, spec llmadapter.LLMCallSpec) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	enc := json.NewEncoder(w)

	var streamErr error
	for ev, err := range coord.RunStream(ctx, spec) {
		if err != nil {
			streamErr = err
			_ = enc.Encode(struct {
				Error string `json:"error"`
			}{Error: err.Error()})
			break
		}
		if encErr := enc.Encode(ev); encErr != nil {
			return encErr
		}
	}
	w.Flush()
	return streamErr
}

// signalContext derives a context from parent that cancels on
// SIGINT/SIGTERM, so a streaming run closes its upstream provider
// connection cleanly instead of leaving it dangling on ^C.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
