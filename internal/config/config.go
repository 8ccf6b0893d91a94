package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CorpusConfig points at the pre-chunked corpus file.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// CollectionConfig names the physical collection and carries the one-shot
// reset toggle (the -reset flag overrides it for a single run).
type CollectionConfig struct {
	Name       string `yaml:"name"`
	ForceReset bool   `yaml:"force_reset"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// OllamaConfig configures the embedding and chat backends.
type OllamaConfig struct {
	Host           string `yaml:"host"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
}

// RetrievalConfig bounds the similarity search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// DegradeOnStoreError lets a question through with no retrieved context
	// when the vector backend is down, instead of failing the turn.
	DegradeOnStoreError bool `yaml:"degrade_on_store_error"`
	BatchSize           int  `yaml:"batch_size"`
}

// PromptConfig bounds the assembled generation prompt.
type PromptConfig struct {
	HistoryWindow int `yaml:"history_window"`
	BudgetChars   int `yaml:"budget_chars"`
}

// LoggingConfig configures the rotating log file.
type LoggingConfig struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Collection  CollectionConfig  `yaml:"collection"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ollama      OllamaConfig      `yaml:"ollama"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/tutor/config.yaml.
// If neither exists, it writes defaults to ~/.config/tutor/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tutor", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Corpus:      CorpusConfig{Path: "data/genki1.json"},
		Collection:  CollectionConfig{Name: "genki"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Ollama: OllamaConfig{
			ChatModel:      "qwen3:1.7b",
			EmbeddingModel: "nomic-embed-text",
		},
		Retrieval: RetrievalConfig{TopK: 4},
		Prompt:    PromptConfig{HistoryWindow: 6, BudgetChars: 6000},
		Logging:   LoggingConfig{File: "tutor.log"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = "genki"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = "qwen3:1.7b"
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = 120
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.BatchSize == 0 {
		cfg.Retrieval.BatchSize = 32
	}
	if cfg.Prompt.HistoryWindow == 0 {
		cfg.Prompt.HistoryWindow = 6
	}
	if cfg.Prompt.BudgetChars == 0 {
		cfg.Prompt.BudgetChars = 6000
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "tutor.log"
	}
}
