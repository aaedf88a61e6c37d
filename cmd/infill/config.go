package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the infill configuration file (~/.config/infill/config.yaml).
// All fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	ModelsDir       string `yaml:"models_dir"`
	Tokenizer       string `yaml:"tokenizer"`
	TokenizerFormat string `yaml:"tokenizer_format"`
	PromptFormat    string `yaml:"prompt_format"`
	Weights         string `yaml:"weights"`
	Hidden          *int64 `yaml:"hidden"`
	ModelSeed       *int64 `yaml:"model_seed"`

	// Sampling defaults
	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
	TopK          *int64   `yaml:"top_k"`
	MinP          *float64 `yaml:"min_p"`
	RepeatPenalty *float64 `yaml:"repeat_penalty"`
	RepeatLastN   *int64   `yaml:"repeat_last_n"`
	MaxTokens     *int64   `yaml:"max_tokens"`
	Seed          *int64   `yaml:"seed"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "infill", "config.yaml")
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults to the shared model flags
// when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.Tokenizer != "" && !c.IsSet("tokenizer") {
		tokenizerPath = cfg.Tokenizer
	}
	if cfg.TokenizerFormat != "" && !c.IsSet("tokenizer-format") {
		tokenizerFormat = cfg.TokenizerFormat
	}
	if cfg.PromptFormat != "" && !c.IsSet("prompt-format") {
		promptFormat = cfg.PromptFormat
	}
	if cfg.Weights != "" && !c.IsSet("weights") {
		weightsPath = cfg.Weights
	}
	if cfg.Hidden != nil && !c.IsSet("hidden") {
		hidden = *cfg.Hidden
	}
	if cfg.ModelSeed != nil && !c.IsSet("model-seed") {
		modelSeed = *cfg.ModelSeed
	}
}

// applyRunConfig applies config file sampling defaults. Values stay nil
// when neither the flag nor the config sets them, so the template's own
// options apply.
func applyRunConfig(c *cli.Command, cfg Config, s *sampling, streamMode *string) {
	if cfg.Temperature != nil && !c.IsSet("temp") {
		s.temp = cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		s.topP = cfg.TopP
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		s.topK = cfg.TopK
	}
	if cfg.MinP != nil && !c.IsSet("min-p") {
		s.minP = cfg.MinP
	}
	if cfg.RepeatPenalty != nil && !c.IsSet("repeat-penalty") {
		s.repeatPenalty = cfg.RepeatPenalty
	}
	if cfg.RepeatLastN != nil && !c.IsSet("repeat-last-n") {
		s.repeatLastN = cfg.RepeatLastN
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		s.maxTokens = cfg.MaxTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		s.seed = cfg.Seed
	}
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		*streamMode = cfg.StreamMode
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
