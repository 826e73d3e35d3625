package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL"`

	// Local storage roots. CASDir holds the content-addressed blob store,
	// VectorStoreDir holds per-notebook index partitions.
	CASDir         string `envconfig:"CAS_DIR" default:"./data/files"`
	VectorStoreDir string `envconfig:"VECTOR_STORE_DIR" default:"./data/vector_store"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"intellinote-files"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Model service credentials. APIKey is the shared fallback; the LLM and
	// embedding keys override it independently.
	APIKey      string `envconfig:"DASHSCOPE_API_KEY"`
	LLMAPIKey   string `envconfig:"LLM_API_KEY"`
	EmbedAPIKey string `envconfig:"EMBED_API_KEY"`
	BaseURL     string `envconfig:"MODEL_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	LLMModel    string `envconfig:"LLM_MODEL" default:"qwen-vl-max"`
	EmbedModel  string `envconfig:"EMBED_MODEL" default:"text-embedding-v4"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"2"`

	PDF PDFOptions
}

// PDFOptions tunes the hybrid PDF parsing pipeline: when a page counts as
// scanned, how many pages may go through OCR or vision, and how column
// detection behaves.
type PDFOptions struct {
	TextPageMinChars       int     `envconfig:"PDF_TEXT_PAGE_MIN_CHARS" default:"50"`
	ScanPageMaxChars       int     `envconfig:"PDF_SCAN_PAGE_MAX_CHARS" default:"50"`
	ImageRatioThreshold    float64 `envconfig:"PDF_IMAGE_RATIO_THRESHOLD" default:"0.5"`
	OCRMaxPages            int     `envconfig:"PDF_OCR_MAX_PAGES" default:"20"`
	VisionMaxPages         int     `envconfig:"PDF_VISION_MAX_PAGES" default:"10"`
	VisionMinImageRatio    float64 `envconfig:"PDF_VISION_MIN_IMAGE_RATIO" default:"0.1"`
	VisionMaxImagesPerPage int     `envconfig:"PDF_VISION_MAX_IMAGES_PER_PAGE" default:"3"`
	VisionOnTextPages      bool    `envconfig:"PDF_VISION_ON_TEXT_PAGES" default:"true"`
	VectorRatioThreshold   float64 `envconfig:"PDF_VECTOR_RATIO_THRESHOLD" default:"0.3"`
	DrawingCountMin        int     `envconfig:"PDF_DRAWING_COUNT_MIN" default:"40"`
	ColumnGapRatio         float64 `envconfig:"PDF_COLUMN_GAP_RATIO" default:"0.18"`
	MaxColumns             int     `envconfig:"PDF_MAX_COLUMNS" default:"4"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("INTELLINOTE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

// LLMKey returns the key used for chat and vision calls.
func (c *Config) LLMKey() string {
	if c.LLMAPIKey != "" {
		return c.LLMAPIKey
	}
	return c.APIKey
}

// EmbedKey returns the key used for embedding calls.
func (c *Config) EmbedKey() string {
	if c.EmbedAPIKey != "" {
		return c.EmbedAPIKey
	}
	return c.APIKey
}

// HasModelService reports whether any model credential is configured. Without
// one, ingestion can still parse and chunk but not embed or classify.
func (c *Config) HasModelService() bool {
	return c.APIKey != "" || c.LLMAPIKey != "" || c.EmbedAPIKey != ""
}
