package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docvat/internal/logger"
)

const (
	ProviderNone       = "none"
	ProviderVision     = "vision"
	ProviderDocumentAI = "documentai"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"

	SubmitKeepLocal = "keep-local"
	SubmitRollback  = "rollback"
)

type Config struct {
	// OCR
	OCRProvider      string        `yaml:"ocr_provider"`
	OCRLanguages     []string      `yaml:"ocr_languages"`
	OCRTimeout       time.Duration `yaml:"ocr_timeout"`
	OCRConfidenceMin float64       `yaml:"ocr_confidence_min"`
	OCRMaxPages      int           `yaml:"ocr_max_pages"`

	// Google Cloud
	GoogleCloudProject         string `yaml:"google_cloud_project"`
	GoogleCloudLocation        string `yaml:"google_cloud_location"`
	DocumentAIProcessorID      string `yaml:"document_ai_processor_id"`
	DocumentAIProcessorVersion string `yaml:"document_ai_processor_version"`
	GoogleCredentialsFile      string `yaml:"-"`
	GoogleCredentialsJSON      string `yaml:"-"`

	// Enrichment
	EnrichmentProvider string        `yaml:"enrichment_provider"`
	EnrichmentTimeout  time.Duration `yaml:"enrichment_timeout"`
	EnrichmentRPS      float64       `yaml:"enrichment_rps"`
	OpenAIAPIKey       string        `yaml:"-"`
	OpenAIModel        string        `yaml:"openai_model"`
	OpenAIMaxTokens    int           `yaml:"openai_max_tokens"`
	OpenAITemperature  float64       `yaml:"openai_temperature"`
	OpenAIJSONMode     bool          `yaml:"openai_json_mode"`
	GeminiAPIKey       string        `yaml:"-"`
	GeminiModel        string        `yaml:"gemini_model"`
	OllamaURL          string        `yaml:"ollama_url"`
	OllamaModel        string        `yaml:"ollama_model"`

	// Storage and accounting sources
	StorePath      string `yaml:"store_path"`
	GoogleSheetURL string `yaml:"google_sheet_url"`

	// VAT
	VATEntity       string `yaml:"vat_entity"`
	VATNumber       string `yaml:"vat_number"`
	VATSubmitPolicy string `yaml:"vat_submit_policy"`
	VATSubmittedBy  string `yaml:"vat_submitted_by"`

	// Runtime
	BatchWorkers int    `yaml:"batch_workers"`
	HTTPAddr     string `yaml:"http_addr"`

	// Logging Configuration
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogTimeFormat string `yaml:"log_time_format"`
	LogOutput     string `yaml:"log_output"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		OCRProvider:         ProviderVision,
		OCRLanguages:        []string{"fr", "en"},
		OCRTimeout:          60 * time.Second,
		OCRConfidenceMin:    0.6,
		OCRMaxPages:         5,
		GoogleCloudLocation: "eu",
		EnrichmentProvider:  ProviderOpenAI,
		EnrichmentTimeout:   60 * time.Second,
		EnrichmentRPS:       2,
		OpenAIModel:         "gpt-4",
		OpenAIMaxTokens:     2000,
		OpenAITemperature:   0.1,
		GeminiModel:         "gemini-1.5-flash",
		OllamaURL:           "http://localhost:11434",
		OllamaModel:         "llama3.1",
		StorePath:           "docvat.db",
		VATEntity:           "Hypervisual SA",
		VATNumber:           "CHE-123.456.789 TVA",
		VATSubmitPolicy:     SubmitKeepLocal,
		BatchWorkers:        4,
		HTTPAddr:            ":8080",
		LogLevel:            "info",
		LogFormat:           "console",
		LogTimeFormat:       "2006-01-02T15:04:05Z07:00",
		LogOutput:           "stderr",
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by DOCVAT_CONFIG, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("DOCVAT_CONFIG"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.OCRProvider = getEnv("OCR_PROVIDER", c.OCRProvider)
	c.OCRLanguages = getList("OCR_LANGUAGES", c.OCRLanguages)
	c.OCRTimeout = getDuration("OCR_TIMEOUT", c.OCRTimeout)
	c.OCRConfidenceMin = getFloat("OCR_CONFIDENCE_MIN", c.OCRConfidenceMin)
	c.OCRMaxPages = getInt("OCR_MAX_PAGES", c.OCRMaxPages)

	c.GoogleCloudProject = getEnv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	c.GoogleCloudLocation = getEnv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	c.DocumentAIProcessorID = getEnv("DOCUMENT_AI_PROCESSOR_ID", c.DocumentAIProcessorID)
	c.DocumentAIProcessorVersion = getEnv("DOCUMENT_AI_PROCESSOR_VERSION", c.DocumentAIProcessorVersion)
	c.GoogleCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsFile)
	c.GoogleCredentialsJSON = getEnv("GOOGLE_CREDENTIALS", c.GoogleCredentialsJSON)

	c.EnrichmentProvider = getEnv("ENRICHMENT_PROVIDER", c.EnrichmentProvider)
	c.EnrichmentTimeout = getDuration("ENRICHMENT_TIMEOUT", c.EnrichmentTimeout)
	c.EnrichmentRPS = getFloat("ENRICHMENT_RPS", c.EnrichmentRPS)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIMaxTokens = getInt("OPENAI_MAX_TOKENS", c.OpenAIMaxTokens)
	c.OpenAITemperature = getFloat("OPENAI_TEMPERATURE", c.OpenAITemperature)
	c.OpenAIJSONMode = getBool("OPENAI_JSON_MODE", c.OpenAIJSONMode)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.OllamaURL = getEnv("OLLAMA_URL", c.OllamaURL)
	c.OllamaModel = getEnv("OLLAMA_MODEL", c.OllamaModel)

	c.StorePath = getEnv("STORE_PATH", c.StorePath)
	c.GoogleSheetURL = getEnv("GOOGLE_SHEET_URL", c.GoogleSheetURL)

	c.VATEntity = getEnv("VAT_ENTITY", c.VATEntity)
	c.VATNumber = getEnv("VAT_NUMBER", c.VATNumber)
	c.VATSubmitPolicy = getEnv("VAT_SUBMIT_POLICY", c.VATSubmitPolicy)
	c.VATSubmittedBy = getEnv("VAT_SUBMITTED_BY", c.VATSubmittedBy)

	c.BatchWorkers = getInt("BATCH_WORKERS", c.BatchWorkers)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogTimeFormat = getEnv("LOG_TIME_FORMAT", c.LogTimeFormat)
	c.LogOutput = getEnv("LOG_OUTPUT", c.LogOutput)
}

// validate rejects values no component could work with. Missing API keys
// are not errors here: the affected provider is disabled at wiring time.
func (c *Config) validate() error {
	switch c.OCRProvider {
	case ProviderVision, ProviderDocumentAI, ProviderNone:
	default:
		return fmt.Errorf("OCR_PROVIDER must be vision, documentai or none, got %q", c.OCRProvider)
	}
	switch c.EnrichmentProvider {
	case ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderNone:
	default:
		return fmt.Errorf("ENRICHMENT_PROVIDER must be openai, gemini, ollama or none, got %q", c.EnrichmentProvider)
	}
	switch c.VATSubmitPolicy {
	case SubmitKeepLocal, SubmitRollback:
	default:
		return fmt.Errorf("VAT_SUBMIT_POLICY must be keep-local or rollback, got %q", c.VATSubmitPolicy)
	}
	if c.OCRProvider == ProviderDocumentAI && c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai OCR provider")
	}
	if c.OCRConfidenceMin < 0 || c.OCRConfidenceMin > 1 {
		return fmt.Errorf("OCR_CONFIDENCE_MIN must be within [0,1], got %v", c.OCRConfidenceMin)
	}
	if c.OCRMaxPages <= 0 {
		return fmt.Errorf("OCR_MAX_PAGES must be positive")
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive")
	}
	if c.OCRTimeout <= 0 || c.EnrichmentTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT and ENRICHMENT_TIMEOUT must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
