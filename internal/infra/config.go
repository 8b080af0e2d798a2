package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	RetentionPolicyTTL   = "ttl"
	RetentionPolicyCount = "count"

	GeneratorModeGemini    = "gemini"
	GeneratorModeSynthetic = "synthetic"

	QRRendererClient = "client"
	QRRendererServer = "server"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	PublicBaseURL string
	DefaultLocale string
	CORSOrigins   []string

	GoogleAPIKey          string
	GeminiModel           string
	GeminiBaseURL         string
	GeneratorMode         string
	GenerationConcurrency int
	GenerationTimeout     time.Duration

	UploadDir      string
	UploadMaxBytes int64
	DownloadsDir   string
	WatermarkPath  string
	CanvasWidth    int
	CanvasHeight   int

	RetentionPolicy        string
	RetentionTTL           time.Duration
	RetentionKeep          int
	RetentionSweepInterval time.Duration

	QRRenderer string
	QRSize     int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP replace the peer
	// address. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// A missing API key is not an error; it is reported by the health endpoint instead.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "3000"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/"),
		DefaultLocale: strings.ToLower(getEnv("DEFAULT_LOCALE", "en")),
		CORSOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		GoogleAPIKey:          strings.TrimSpace(getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY"))),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:         os.Getenv("GEMINI_BASE_URL"),
		GeneratorMode:         strings.ToLower(getEnv("GENERATOR_MODE", GeneratorModeGemini)),
		GenerationConcurrency: getEnvInt("GENERATION_CONCURRENCY", 4),
		GenerationTimeout:     time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		UploadMaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 5*1024*1024)),
		DownloadsDir:   getEnv("DOWNLOADS_DIR", "./generated"),
		WatermarkPath:  getEnv("WATERMARK_PATH", "./public/img/watermark.png"),
		CanvasWidth:    getEnvInt("CANVAS_WIDTH", 2400),
		CanvasHeight:   getEnvInt("CANVAS_HEIGHT", 3600),

		RetentionPolicy:        strings.ToLower(getEnv("RETENTION_POLICY", RetentionPolicyTTL)),
		RetentionTTL:           getEnvDuration("RETENTION_TTL", time.Hour),
		RetentionKeep:          getEnvInt("RETENTION_KEEP", 30),
		RetentionSweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", 30*time.Minute),

		QRRenderer: strings.ToLower(getEnv("QR_RENDERER", QRRendererClient)),
		QRSize:     getEnvInt("QR_SIZE", 256),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
	}

	switch cfg.RetentionPolicy {
	case RetentionPolicyTTL:
		if cfg.RetentionTTL <= 0 {
			return nil, fmt.Errorf("RETENTION_TTL must be positive")
		}
	case RetentionPolicyCount:
		if cfg.RetentionKeep <= 0 {
			return nil, fmt.Errorf("RETENTION_KEEP must be positive")
		}
	default:
		return nil, fmt.Errorf("RETENTION_POLICY must be %q or %q, got %q", RetentionPolicyTTL, RetentionPolicyCount, cfg.RetentionPolicy)
	}

	switch cfg.GeneratorMode {
	case GeneratorModeGemini, GeneratorModeSynthetic:
	default:
		return nil, fmt.Errorf("GENERATOR_MODE must be %q or %q, got %q", GeneratorModeGemini, GeneratorModeSynthetic, cfg.GeneratorMode)
	}

	switch cfg.QRRenderer {
	case QRRendererClient, QRRendererServer:
	default:
		return nil, fmt.Errorf("QR_RENDERER must be %q or %q, got %q", QRRendererClient, QRRendererServer, cfg.QRRenderer)
	}

	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return nil, fmt.Errorf("CANVAS_WIDTH and CANVAS_HEIGHT must be positive")
	}
	if cfg.UploadMaxBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if cfg.GenerationConcurrency <= 0 {
		cfg.GenerationConcurrency = 1
	}
	if cfg.RetentionSweepInterval <= 0 {
		cfg.RetentionSweepInterval = 30 * time.Minute
	}

	return cfg, nil
}

// HasAPIKey reports whether the generation credential is configured.
func (c *Config) HasAPIKey() bool {
	return c != nil && c.GoogleAPIKey != ""
}

// Warnings lists settings that let the service start but degrade it.
func (c *Config) Warnings() []string {
	var out []string
	if !c.HasAPIKey() && c.GeneratorMode == GeneratorModeGemini {
		out = append(out, "GOOGLE_API_KEY is not set; generation requests will fail until it is configured")
	}
	if c.PublicBaseURL == "" {
		out = append(out, "PUBLIC_BASE_URL is not set; download links and QR codes follow the client-supplied Host and X-Forwarded-Proto headers, set it in production")
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
