package timingsHandler

import (
	timingsService "detectbench/internal/api/timings/service"
	"detectbench/internal/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type TimingsHandler struct {
	log            *logrus.Logger
	validator      *validator.Validate
	middleware     middleware.Middleware
	timingsService timingsService.ITimingsService
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ts timingsService.ITimingsService,
) *TimingsHandler {
	return &TimingsHandler{
		log:            log,
		validator:      validator,
		middleware:     middleware,
		timingsService: ts,
	}
}

func (h *TimingsHandler) Start(srv fiber.Router) {
	srv.Get("/timings/:strategy", h.GetHistory)
}
