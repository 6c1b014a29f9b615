package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	flowforge "github.com/flowforge/flowforge"
)

var (
	flagConfig  string
	flagDataDir string
	flagPort    int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flowforged",
	Short: "FlowForge pipeline execution engine",
	Long:  "flowforged validates and executes node-graph pipelines, serving a REST and websocket API.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (overrides config)")

	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP listen port (overrides config)")

	rootCmd.AddCommand(serveCmd, validateCmd, runCmd)
}

func loadConfig() (flowforge.Config, error) {
	config := flowforge.Config{}
	if flagConfig != "" {
		raw, err := os.ReadFile(flagConfig)
		if err != nil {
			return config, fmt.Errorf("reading config %s: %w", flagConfig, err)
		}
		if err := yaml.Unmarshal(raw, &config); err != nil {
			return config, fmt.Errorf("parsing config %s: %w", flagConfig, err)
		}
	}

	if env := os.Getenv("FLOWFORGE_DATA_DIR"); env != "" {
		config.DataDir = env
	}
	if env := os.Getenv("FLOWFORGE_WORKER_COMMAND"); env != "" {
		config.Stage.WorkerCommand = env
	}
	if env := os.Getenv("FLOWFORGE_INFERENCE_URL"); env != "" {
		config.Inference.BaseURL = env
	}
	if env := os.Getenv("OPENAI_API_KEY"); env != "" && config.Inference.APIKey == "" {
		config.Inference.APIKey = env
	}

	if flagDataDir != "" {
		config.DataDir = flagDataDir
	}
	if flagPort != 0 {
		config.Server.Port = flagPort
	}

	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("FLOWFORGE_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	config.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	return config, nil
}

func loadPipeline(path string) (*flowforge.Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline %s: %w", path, err)
	}

	var pipeline flowforge.Pipeline
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &pipeline)
	default:
		err = json.Unmarshal(raw, &pipeline)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing pipeline %s: %w", path, err)
	}
	return &pipeline, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline engine API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := flowforge.New(config)
		if err != nil {
			return err
		}
		defer manager.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return manager.Serve(ctx)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline-file>",
	Short: "Validate a pipeline definition without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		pipeline, err := loadPipeline(args[0])
		if err != nil {
			return err
		}

		manager, err := flowforge.New(config)
		if err != nil {
			return err
		}
		defer manager.Close()

		result := manager.ValidatePipeline(pipeline)
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if !result.IsValid {
			return fmt.Errorf("pipeline %s is invalid", pipeline.ID)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <pipeline-file>",
	Short: "Execute a pipeline and stream its events to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		pipeline, err := loadPipeline(args[0])
		if err != nil {
			return err
		}

		manager, err := flowforge.New(config)
		if err != nil {
			return err
		}
		defer manager.Close()

		executionID, err := manager.SubmitExecution(pipeline)
		if err != nil {
			return err
		}
		events, unsubscribe := manager.SubscribeEvents(executionID)
		defer unsubscribe()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The subscription attaches just after submission, so the status
		// poll below is what reliably detects terminal state.
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		finish := func() error {
			final, err := manager.GetExecutionStatus(executionID)
			if err != nil {
				return err
			}
			if final.Status == "error" {
				return fmt.Errorf("execution failed: %s", final.Error)
			}
			return nil
		}

		for {
			select {
			case event := <-events:
				line, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Println(string(line))
				if event.Type == "pipeline-complete" || event.Type == "pipeline-error" {
					return finish()
				}
			case <-ticker.C:
				execution, err := manager.GetExecutionStatus(executionID)
				if err != nil {
					return err
				}
				if execution.Status != "running" {
					return finish()
				}
			case <-ctx.Done():
				if err := manager.StopExecution(executionID); err != nil {
					return err
				}
				return fmt.Errorf("execution %s stopped", executionID)
			}
		}
	},
}
