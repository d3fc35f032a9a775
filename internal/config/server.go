package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	detectionHandler "detectbench/internal/api/detection/handler"
	detectionService "detectbench/internal/api/detection/service"
	timingsHandler "detectbench/internal/api/timings/handler"
	timingsService "detectbench/internal/api/timings/service"
	"detectbench/internal/middleware"
	"detectbench/pkg/engine"
	"detectbench/pkg/redis"
	"detectbench/pkg/storage"
	"detectbench/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine     *fiber.App
	log        *logrus.Logger
	settings   *Settings
	middleware middleware.Middleware
	validator  *validator.Validate
	utils      utils.IUtils
	layout     *storage.Layout
	mirror     storage.Mirror
	history    redis.IRedis
	provider   *engine.Provider
	detection  detectionService.IDetectionService
	handlers   []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if server.layout == nil {
		return nil, fmt.Errorf("storage layout is required")
	}
	if server.provider == nil {
		return nil, fmt.Errorf("engine provider is required")
	}
	if server.middleware == nil {
		return nil, fmt.Errorf("middleware is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New(server.settings.MaxUploadBytes())
	}
	if server.history == nil {
		server.history = redis.New(redis.Config{}, server.log)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithSettings(settings *Settings) ServerOption {
	return func(s *Server) error {
		s.settings = settings
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		cfg := middleware.Config{}
		if s.settings != nil {
			cfg.RateLimit = s.settings.RateLimit
			cfg.RateBurst = s.settings.RateBurst
		}
		s.middleware = middleware.New(s.log, cfg)
		return nil
	}
}

// WithStorage prepares the upload/result directories and the optional S3
// mirror. Settings must be applied first.
func WithStorage() ServerOption {
	return func(s *Server) error {
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before storage")
		}

		layout, err := storage.NewLayout(s.settings.ProjectRoot, s.settings.UploadDir, s.settings.ResultDir)
		if err != nil {
			return fmt.Errorf("failed to prepare storage: %w", err)
		}

		mirror, err := storage.NewMirror(storage.S3Config{
			Region:          s.settings.AWSRegion,
			Bucket:          s.settings.AWSBucket,
			AccessKeyID:     s.settings.AWSAccessKey,
			SecretAccessKey: s.settings.AWSSecretKey,
			Prefix:          "detected",
		})
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 mirror: %v", err)
			}
			return fmt.Errorf("failed to create S3 mirror: %w", err)
		}

		s.layout = layout
		s.mirror = mirror
		return nil
	}
}

func WithRedisServer(history redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.history = history
		return nil
	}
}

func WithEngineProvider(provider *engine.Provider) ServerOption {
	return func(s *Server) error {
		s.provider = provider
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before utils")
		}
		s.utils = utils.New(s.settings.MaxUploadBytes())
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Detection
	s.detection = detectionService.NewDetectionService(s.log, s.provider, s.layout, s.mirror, s.history)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, s.detection, s.utils)

	// Timing history
	timingsServices := timingsService.New(s.log, s.history)
	timingsHandlers := timingsHandler.New(s.log, s.validator, s.middleware, timingsServices)

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	s.setupHealthCheck()
	s.setupPage()
	s.handlers = append(s.handlers, detectionHandlers, timingsHandlers)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) Run() error {
	return s.engine.Listen(fmt.Sprintf(":%s", s.settings.AppPort))
}

// Shutdown stops accepting requests, waits for background artifact work and
// releases the engine and Redis connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.engine.ShutdownWithContext(ctx); err != nil {
		s.log.Errorf("Error shutting down HTTP server: %v", err)
	}
	if s.detection != nil {
		s.detection.Close()
	}
	if err := s.provider.Close(); err != nil {
		s.log.Errorf("Error closing detection engine: %v", err)
	}
	return s.history.Close()
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":       "Server is Healthy!",
			"model":         s.settings.ModelVariant,
			"backend":       s.settings.EngineBackend,
			"engine_loaded": s.provider.Loaded(),
			"time":          time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func (s *Server) setupPage() {
	root := s.layout.Root()
	s.engine.Static("/static", filepath.Join(root, "static"))
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.SendFile(filepath.Join(root, "templates", "index.html"))
	})
}
