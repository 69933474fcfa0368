// Package config handles Corvid configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Services
	Oracle OracleConfig `json:"oracle"`
	Qdrant QdrantConfig `json:"qdrant"`
	Ollama OllamaConfig `json:"ollama"`

	// Pipeline tuning
	Crawl   CrawlConfig   `json:"crawl"`
	Indexer IndexerConfig `json:"indexer"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// OracleConfig for the generative backend
type OracleConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// QdrantConfig for the chunk vector store
type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// OllamaConfig for local embeddings
type OllamaConfig struct {
	URL   string `json:"url"`
	Model string `json:"model"`
}

// CrawlConfig for the frontier
type CrawlConfig struct {
	PageBudget int `json:"page_budget"` // max pages per run
}

// IndexerConfig for the chunker
type IndexerConfig struct {
	ChunkWindow  int `json:"chunk_window"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".corvid"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Oracle: OracleConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  "claude-sonnet-4-20250514",
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "nomic-embed-text",
		},
		Crawl: CrawlConfig{
			PageBudget: 300,
		},
		Indexer: IndexerConfig{
			ChunkWindow:  1500,
			ChunkOverlap: 150,
		},
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override API key from env if set
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Oracle.APIKey = apiKey
	}

	return cfg, nil
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Don't save API key to file
	safeCfg := *c
	safeCfg.Oracle.APIKey = ""

	data, err := json.MarshalIndent(safeCfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
