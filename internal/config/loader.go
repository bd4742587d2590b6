package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/25smoking/ovalprobe/internal/embedded"
)

const (
	DefaultConfigName      = "ovalprobe.yaml"
	DefaultDefinitionsName = "definitions.yaml"

	ModeInProcess    = "inproc"
	ModeOutOfProcess = "outproc"
)

// ========== Scanner Config ==========

type Config struct {
	Scanner           ScannerConfig       `yaml:"scanner"`
	ExternalVariables map[string][]string `yaml:"external_variables"`
}

type ScannerConfig struct {
	ProbeMode string `yaml:"probe_mode"`
	Digest    string `yaml:"digest"`
	LogLevel  string `yaml:"log_level"`
}

func (c *Config) applyDefaults() {
	if c.Scanner.ProbeMode == "" {
		c.Scanner.ProbeMode = ModeInProcess
	}
	if c.Scanner.Digest == "" {
		c.Scanner.Digest = "md5"
	}
	if c.Scanner.LogLevel == "" {
		c.Scanner.LogLevel = "info"
	}
	if c.ExternalVariables == nil {
		c.ExternalVariables = map[string][]string{}
	}
}

func (c *Config) validate() error {
	switch c.Scanner.ProbeMode {
	case ModeInProcess, ModeOutOfProcess:
	default:
		return fmt.Errorf("unknown probe_mode %q", c.Scanner.ProbeMode)
	}
	return nil
}

// ========== Loader Functions ==========

func loadConfigData(configPath, defaultName string) ([]byte, error) {
	// 1. 尝试从文件系统加载
	if configPath == "" {
		configPath = filepath.Join("config", defaultName)
	}

	if _, err := os.Stat(configPath); err == nil {
		return os.ReadFile(configPath)
	}

	// 2. 回退到内嵌配置 (embed 总是使用正斜杠)
	return embedded.Content.ReadFile("config/" + defaultName)
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := loadConfigData(configPath, DefaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to read scanner config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scanner config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Scanner.ProbeMode = strings.ToLower(cfg.Scanner.ProbeMode)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadDefinitions(configPath string) (*Definitions, error) {
	data, err := loadConfigData(configPath, DefaultDefinitionsName)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	return ParseDefinitions(data)
}

func ParseDefinitions(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}
	return &defs, nil
}
