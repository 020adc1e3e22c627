package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"xhs_copycat/generator"
)

// 各 provider 的默认接口地址；deepseek 没有默认值，必须显式配置 base_url。
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

const (
	DefaultProvider = "openrouter"
	DefaultModel    = "google/gemini-2.5-flash"
	DefaultAppTitle = "XHS-CopyCat"
	DefaultAddr     = ":8080"
	DefaultOutput   = "out"
)

// Config 应用配置，文件（json/yaml/toml）+ 环境变量覆盖。
type Config struct {
	LLM         LLMConfig `json:"llm" yaml:"llm" toml:"llm"`
	ServerAddr  string    `json:"server_addr,omitempty" yaml:"server_addr" toml:"server_addr" env:"SERVER_ADDR"`
	LogLevel    string    `json:"log_level,omitempty" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	CatalogPath string    `json:"catalog_path,omitempty" yaml:"catalog_path" toml:"catalog_path" env:"CATALOG_PATH"`
	OutputDir   string    `json:"output_dir,omitempty" yaml:"output_dir" toml:"output_dir" env:"OUTPUT_DIR"`
}

// LLMConfig 模型后端配置。
type LLMConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider" toml:"provider" env:"LLM_PROVIDER"`
	Model    string `json:"model,omitempty" yaml:"model" toml:"model" env:"LLM_MODEL"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key" toml:"api_key" env:"LLM_API_KEY"`
	// APIKeyEnv 指定从哪个环境变量读取 key（api_key 为空时生效）。
	APIKeyEnv      string `json:"api_key_env,omitempty" yaml:"api_key_env" toml:"api_key_env"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url" toml:"base_url" env:"LLM_BASE_URL"`
	Referer        string `json:"referer,omitempty" yaml:"referer" toml:"referer"`
	AppTitle       string `json:"app_title,omitempty" yaml:"app_title" toml:"app_title"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds" toml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS"`
	MaxRetries     int    `json:"max_retries,omitempty" yaml:"max_retries" toml:"max_retries" env:"LLM_MAX_RETRIES"`
}

// Load 读取 .env、配置文件（path 为空则跳过）与环境变量，补默认值并校验。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = DefaultProvider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultBaseURLs[c.LLM.Provider]
	}
	if c.LLM.AppTitle == "" {
		c.LLM.AppTitle = DefaultAppTitle
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultAddr
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutput
	}
}

// Validate 基本校验。
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "openrouter", "deepseek", "mock":
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Provider != "mock" && c.LLM.APIKey == "" {
		return errors.New("llm api key missing; set llm.api_key, llm.api_key_env or LLM_API_KEY")
	}
	// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
	if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
		return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must be >= 0")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.max_retries must be >= 0")
	}
	return nil
}

// Settings 转换为生成模块使用的后端配置。
func (c *Config) Settings() generator.LLMSettings {
	return generator.LLMSettings{
		Provider:   c.LLM.Provider,
		Model:      c.LLM.Model,
		APIKey:     c.LLM.APIKey,
		BaseURL:    c.LLM.BaseURL,
		Referer:    c.LLM.Referer,
		AppTitle:   c.LLM.AppTitle,
		Timeout:    time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		MaxRetries: c.LLM.MaxRetries,
	}
}
