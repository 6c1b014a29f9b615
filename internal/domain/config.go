package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Engine    EngineConfig    `json:"engine" yaml:"engine"`
	Stage     StageConfig     `json:"stage" yaml:"stage"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Inference InferenceConfig `json:"inference" yaml:"inference"`
}

type EngineConfig struct {
	// HTTPTimeout bounds input/output node network calls.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout"`
	// RetainStopped keeps stopped execution records in the registry
	// instead of removing them on Stop.
	RetainStopped bool `json:"retain_stopped" yaml:"retain_stopped"`
}

type StageConfig struct {
	// WorkerCommand is the executable invoked for script-backed stages.
	// It receives the run-config path and the stage id as arguments.
	WorkerCommand string `json:"worker_command" yaml:"worker_command"`
	// WorkDir holds generated run-configuration artifacts.
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

type InferenceConfig struct {
	// BaseURL of an OpenAI-compatible endpoint. Empty disables real
	// inference; ai nodes then return placeholder results.
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
}

func DefaultConfig() Config {
	return Config{
		DataDir: "./data",
		Engine: EngineConfig{
			HTTPTimeout:   30 * time.Second,
			RetainStopped: true,
		},
		Stage: StageConfig{
			WorkerCommand: "python3",
			WorkDir:       "./data/stages",
		},
		Server: ServerConfig{
			Port: 8090,
		},
	}
}

func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Engine.HTTPTimeout == 0 {
		c.Engine.HTTPTimeout = def.Engine.HTTPTimeout
	}
	if c.Stage.WorkerCommand == "" {
		c.Stage.WorkerCommand = def.Stage.WorkerCommand
	}
	if c.Stage.WorkDir == "" {
		c.Stage.WorkDir = def.Stage.WorkDir
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
