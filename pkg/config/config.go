package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts human-readable durations ("90s", "2m") in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %v", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		RateLimit   float64 `yaml:"rate_limit"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Extractor struct {
		MinCharsPerPage int      `yaml:"min_chars_per_page"`
		OCRBaseURL      string   `yaml:"ocr_base_url"`
		OCRTimeout      Duration `yaml:"ocr_timeout"`
		OCRRateLimit    float64  `yaml:"ocr_rate_limit"`
	} `yaml:"extractor"`

	Chunker struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Retrieval struct {
		TopK          int     `yaml:"top_k"`
		MinSimilarity float64 `yaml:"min_similarity"`
	} `yaml:"retrieval"`

	Scoring struct {
		MaxAttempts int      `yaml:"max_attempts"`
		MinBackoff  Duration `yaml:"min_backoff"`
		MaxBackoff  Duration `yaml:"max_backoff"`

		ContradictsWeight  float64 `yaml:"contradicts_weight"`
		UnverifiableWeight float64 `yaml:"unverifiable_weight"`
		SupportsWeight     float64 `yaml:"supports_weight"`
		RuleScale          float64 `yaml:"rule_scale"`
	} `yaml:"scoring"`

	Rules struct {
		Path string `yaml:"path"`
	} `yaml:"rules"`

	Metrics struct {
		BaseURL string   `yaml:"base_url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"metrics"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/greenlens/config.yaml"),
			"/etc/greenlens/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 4.0
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunk_embeddings"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Extractor.MinCharsPerPage == 0 {
		config.Extractor.MinCharsPerPage = 200
	}
	if config.Extractor.OCRTimeout == 0 {
		config.Extractor.OCRTimeout = Duration(60 * time.Second)
	}
	if config.Extractor.OCRRateLimit == 0 {
		config.Extractor.OCRRateLimit = 0.5
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 200
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 8
	}
	if config.Retrieval.MinSimilarity == 0 {
		config.Retrieval.MinSimilarity = 0.25
	}

	if config.Scoring.MaxAttempts == 0 {
		config.Scoring.MaxAttempts = 3
	}
	if config.Scoring.MinBackoff == 0 {
		config.Scoring.MinBackoff = Duration(time.Second)
	}
	if config.Scoring.MaxBackoff == 0 {
		config.Scoring.MaxBackoff = Duration(30 * time.Second)
	}
	if config.Scoring.ContradictsWeight == 0 {
		config.Scoring.ContradictsWeight = 1.0
	}
	if config.Scoring.UnverifiableWeight == 0 {
		config.Scoring.UnverifiableWeight = 0.35
	}
	if config.Scoring.SupportsWeight == 0 {
		config.Scoring.SupportsWeight = 0.5
	}
	if config.Scoring.RuleScale == 0 {
		config.Scoring.RuleScale = 0.8
	}

	if config.Metrics.Timeout == 0 {
		config.Metrics.Timeout = Duration(15 * time.Second)
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if ocrURL := os.Getenv("OCR_BASE_URL"); ocrURL != "" {
		config.Extractor.OCRBaseURL = ocrURL
	}
	if metricsURL := os.Getenv("METRICS_BASE_URL"); metricsURL != "" {
		config.Metrics.BaseURL = metricsURL
	}
}
