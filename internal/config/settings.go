package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"detectbench/pkg/engine"

	"github.com/go-playground/validator/v10"
)

type Settings struct {
	AppPort        string `validate:"required,numeric"`
	ProjectRoot    string `validate:"required"`
	UploadDir      string `validate:"required"`
	ResultDir      string `validate:"required"`
	MaxUploadMB    int    `validate:"gt=0"`
	ModelDir       string `validate:"required"`
	ModelVariant   string `validate:"oneof=yolov8n yolov8s yolov8m"`
	ModelPath      string
	EngineBackend  string `validate:"oneof=onnx remote"`
	EngineURL      string `validate:"required_if=EngineBackend remote"`
	ORTLibraryPath string
	ConfThreshold  float64 `validate:"gt=0,lt=1"`
	IoUThreshold   float64 `validate:"gt=0,lt=1"`
	RedisAddress   string
	RedisPassword  string
	RedisDB        int    `validate:"gte=0"`
	TimingHistory  int    `validate:"gt=0"`
	AWSRegion      string `validate:"required_with=AWSBucket"`
	AWSBucket      string
	AWSAccessKey   string
	AWSSecretKey   string
	RateLimit      float64 `validate:"gt=0"`
	RateBurst      int     `validate:"gt=0"`
}

// LoadSettings reads the environment, applying defaults for unset keys.
func LoadSettings(v *validator.Validate) (*Settings, error) {
	var errs []error
	s := &Settings{
		AppPort:        getEnv("APP_PORT", "3000"),
		ProjectRoot:    getEnv("PROJECT_ROOT", "."),
		UploadDir:      getEnv("UPLOAD_DIR", filepath.Join("static", "uploads")),
		ResultDir:      getEnv("RESULT_DIR", filepath.Join("static", "result")),
		MaxUploadMB:    getInt("MAX_UPLOAD_MB", 200, &errs),
		ModelDir:       getEnv("MODEL_DIR", "models"),
		ModelVariant:   getEnv("MODEL_VARIANT", "yolov8s"),
		ModelPath:      os.Getenv("MODEL_PATH"),
		EngineBackend:  getEnv("ENGINE_BACKEND", engine.BackendONNX),
		EngineURL:      os.Getenv("ENGINE_REMOTE_URL"),
		ORTLibraryPath: os.Getenv("ORT_LIBRARY_PATH"),
		ConfThreshold:  getFloat("CONF_THRESHOLD", engine.DefaultConfThreshold, &errs),
		IoUThreshold:   getFloat("IOU_THRESHOLD", engine.DefaultIoUThreshold, &errs),
		RedisAddress:   os.Getenv("REDIS_ADDRESS"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0, &errs),
		TimingHistory:  getInt("TIMING_HISTORY", 200, &errs),
		AWSRegion:      os.Getenv("AWS_REGION"),
		AWSBucket:      os.Getenv("AWS_BUCKET_NAME"),
		AWSAccessKey:   os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		RateLimit:      getFloat("RATE_LIMIT", 50, &errs),
		RateBurst:      getInt("RATE_BURST", 100, &errs),
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	if err := v.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// ResolvedModelPath is MODEL_PATH when set, otherwise <MODEL_DIR>/<variant>.onnx
// under the project root.
func (s *Settings) ResolvedModelPath() string {
	if s.ModelPath != "" {
		return s.ModelPath
	}
	dir := s.ModelDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.ProjectRoot, dir)
	}
	return filepath.Join(dir, s.ModelVariant+".onnx")
}

func (s *Settings) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}

func (s *Settings) EngineConfig() engine.Config {
	return engine.Config{
		Backend:       s.EngineBackend,
		ModelPath:     s.ResolvedModelPath(),
		LibraryPath:   s.ORTLibraryPath,
		RemoteURL:     s.EngineURL,
		ConfThreshold: float32(s.ConfThreshold),
		IoUThreshold:  float32(s.IoUThreshold),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
