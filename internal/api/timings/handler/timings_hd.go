package timingsHandler

import (
	"detectbench/internal/api/timings"
	"detectbench/internal/entity"
	contextPkg "detectbench/pkg/context"
	"detectbench/pkg/handlerUtil"

	"github.com/gofiber/fiber/v2"
)

func (h *TimingsHandler) GetHistory(ctx *fiber.Ctx) error {
	c := contextPkg.FromFiberCtx(ctx)
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	strategy, err := entity.ParseStrategy(ctx.Params("strategy"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, timings.ErrUnknownStrategy, ctx.Path(), "parse_strategy")
	}

	var query timings.HistoryQuery
	if err := ctx.QueryParser(&query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	resp, err := h.timingsService.History(c, strategy, query.Limit)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "timing_history")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, resp)
}
