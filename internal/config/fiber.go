package config

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// formOverhead leaves room for multipart framing and the text fields around
// a maximum-size file.
const formOverhead = 1 << 20

func NewFiber(logger *logrus.Logger, settings *Settings) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Detection Benchmark",
			BodyLimit:         int(settings.MaxUploadBytes()) + formOverhead,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: false,
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      jsonErrorHandler(logger),
		})

	return app
}

// jsonErrorHandler keeps framework-level failures in the same {"error": ...}
// shape as handler errors.
func jsonErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "An unexpected error occurred"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}
		if code == fiber.StatusRequestEntityTooLarge {
			msg = "file too large"
		}

		if code >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"path":  c.Path(),
				"error": err.Error(),
			}).Error("Unhandled error")
		}

		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
