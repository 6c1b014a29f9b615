package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/flowforge/flowforge/internal/domain"
	"github.com/flowforge/flowforge/internal/ports"
)

// Runner spawns external worker processes for script-backed stages and
// streams their output as log events. One live process handle is tracked
// per (execution id, stage id) pair so a cancellation request can signal
// exactly the right subprocess.
type Runner struct {
	config  domain.StageConfig
	emitter ports.EventEmitterPort
	logger  *slog.Logger

	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

func New(config domain.StageConfig, emitter ports.EventEmitterPort, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		config:  config,
		emitter: emitter,
		logger:  logger.With("component", "stage-runner"),
		procs:   make(map[string]*exec.Cmd),
	}
}

func processKey(executionID, stageID string) string {
	return executionID + "/" + stageID
}

func (r *Runner) RunStage(ctx context.Context, executionID, pipelineID, stageID string, params map[string]interface{}) (*domain.StageResult, error) {
	started := time.Now()

	configPath, err := r.writeRunConfig(executionID, pipelineID, stageID, params)
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeStage,
			Message: fmt.Sprintf("write run config: %v", err),
			Details: map[string]interface{}{"stage_id": stageID},
		}
	}

	cmd := exec.CommandContext(ctx, r.config.WorkerCommand, configPath, stageID)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeStage,
			Message: fmt.Sprintf("stdout pipe: %v", err),
		}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeStage,
			Message: fmt.Sprintf("stderr pipe: %v", err),
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeStage,
			Message: fmt.Sprintf("start worker %s: %v", r.config.WorkerCommand, err),
			Details: map[string]interface{}{"stage_id": stageID},
		}
	}

	key := processKey(executionID, stageID)
	r.mu.Lock()
	r.procs[key] = cmd
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.procs, key)
		r.mu.Unlock()
	}()

	r.logger.Debug("stage worker started",
		"execution_id", executionID,
		"stage_id", stageID,
		"pid", cmd.Process.Pid)

	var logMu sync.Mutex
	var logs []string
	var lastStderr string

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.streamLines(stdout, executionID, pipelineID, stageID, domain.LogLevelInfo, func(line string) {
			logMu.Lock()
			logs = append(logs, line)
			logMu.Unlock()
		})
	}()
	go func() {
		defer wg.Done()
		r.streamLines(stderr, executionID, pipelineID, stageID, domain.LogLevelError, func(line string) {
			logMu.Lock()
			logs = append(logs, line)
			lastStderr = line
			logMu.Unlock()
		})
	}()

	wg.Wait()
	err = cmd.Wait()
	duration := time.Since(started)

	result := &domain.StageResult{
		StageID:  stageID,
		Logs:     logs,
		Duration: duration,
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Error = lastStderr
		if result.Error == "" {
			result.Error = fmt.Sprintf("stage worker exited with code %d", result.ExitCode)
		}
		r.logger.Debug("stage worker failed",
			"execution_id", executionID,
			"stage_id", stageID,
			"exit_code", result.ExitCode,
			"duration", duration)
		return result, nil
	}

	result.Success = true
	result.Outputs = r.readResultFile(configPath)
	r.logger.Debug("stage worker completed",
		"execution_id", executionID,
		"stage_id", stageID,
		"duration", duration)

	return result, nil
}

// streamLines forwards each line as a log event the moment it arrives, so
// observers see progress during long-running stages.
func (r *Runner) streamLines(reader io.Reader, executionID, pipelineID, stageID string, level domain.LogLevel, record func(string)) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		record(line)
		if r.emitter != nil {
			r.emitter.Publish(domain.ExecutionTopic(executionID),
				domain.NewLogEvent(executionID, pipelineID, stageID, level, line))
		}
	}
}

// writeRunConfig produces the YAML artifact a worker reads: pipeline and
// stage identifiers plus declared parameters.
func (r *Runner) writeRunConfig(executionID, pipelineID, stageID string, params map[string]interface{}) (string, error) {
	if err := os.MkdirAll(r.config.WorkDir, 0o755); err != nil {
		return "", err
	}

	runConfig := domain.StageRunConfig{
		PipelineID:  pipelineID,
		ExecutionID: executionID,
		StageID:     stageID,
		Parameters:  params,
	}

	data, err := yaml.Marshal(&runConfig)
	if err != nil {
		return "", err
	}

	path := filepath.Join(r.config.WorkDir, fmt.Sprintf("run-%s-%s.yaml", executionID, stageID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// readResultFile picks up the worker's declared result, if it wrote one
// next to the run config.
func (r *Runner) readResultFile(configPath string) map[string]interface{} {
	raw, err := os.ReadFile(configPath + ".result.json")
	if err != nil {
		return nil
	}
	var outputs map[string]interface{}
	if err := json.Unmarshal(raw, &outputs); err != nil {
		r.logger.Warn("malformed stage result file", "path", configPath+".result.json", "error", err)
		return nil
	}
	return outputs
}

// KillByExecution kills every live worker whose key is prefixed by the
// execution id. Returns the number of processes signalled.
func (r *Runner) KillByExecution(executionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := executionID + "/"
	killed := 0
	for key, cmd := range r.procs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				r.logger.Warn("failed to kill stage worker",
					"key", key,
					"error", err)
				continue
			}
			killed++
		}
		delete(r.procs, key)
	}

	if killed > 0 {
		r.logger.Debug("stage workers killed", "execution_id", executionID, "count", killed)
	}
	return killed
}

// LiveProcessCount reports how many worker processes are currently tracked.
func (r *Runner) LiveProcessCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}
