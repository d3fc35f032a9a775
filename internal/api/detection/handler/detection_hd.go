package detectionHandler

import (
	"context"
	"errors"

	"detectbench/internal/api/detection"
	detectionService "detectbench/internal/api/detection/service"
	"detectbench/internal/entity"
	contextPkg "detectbench/pkg/context"
	"detectbench/pkg/handlerUtil"
	"detectbench/pkg/log"
	"detectbench/pkg/timing"
	"detectbench/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// Detect validates the whole upload before anything touches the disk, then
// runs the requested strategy.
func (h *DetectionHandler) Detect(ctx *fiber.Ctx) error {
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), detectTimeout)
	defer cancel()

	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	file, err := ctx.FormFile("file")
	if err != nil {
		return errHandler.Handle(ctx, requestID, missingFileError(ctx), ctx.Path(), "form_file")
	}

	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, uploadError(err), ctx.Path(), "validate_image_file")
	}

	var form detection.DetectForm
	if err := ctx.BodyParser(&form); err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrInvalidForm, ctx.Path(), "parse_form")
	}

	strategy, err := entity.ParseStrategy(form.Strategy)
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrUnknownStrategy, ctx.Path(), "parse_strategy")
	}

	if err := h.validator.Struct(form); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"file_name":  file.Filename,
		"file_size":  file.Size,
		"strategy":   strategy.String(),
	}).Debug("Processing detection upload")

	rec := timing.NewRecorder()
	req, err := h.detectionService.Receive(c, detectionService.Upload{
		File:      file,
		Filename:  h.utils.SecureFilename(file.Filename),
		Strategy:  strategy,
		Letterbox: form.Letterbox(),
	}, rec)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "receive_upload")
	}

	result, err := h.detectionService.Dispatch(c, req, rec)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "dispatch_"+strategy.Key())
	}

	payload, err := h.detectionService.Assemble(c, result, rec)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "assemble_result")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"strategy":   strategy.String(),
		}).Info("Detection request served")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, payload)
	}
}

// missingFileError tells an absent file field from one sent without a
// filename, which multipart parsing files under plain values.
func missingFileError(ctx *fiber.Ctx) error {
	form, err := ctx.MultipartForm()
	if err == nil {
		if _, ok := form.Value["file"]; ok {
			return detection.ErrEmptyFilename
		}
	}
	return detection.ErrFileMissing
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNoFile):
		return detection.ErrFileMissing
	case errors.Is(err, utils.ErrEmptyFilename):
		return detection.ErrEmptyFilename
	case errors.Is(err, utils.ErrUnsupportedType):
		return detection.ErrUnsupportedFileType
	case errors.Is(err, utils.ErrFileTooLarge):
		return detection.ErrFileTooLarge
	default:
		return err
	}
}
