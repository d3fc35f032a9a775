package timings

import (
	"net/http"

	"detectbench/pkg/response"
)

var (
	ErrUnknownStrategy = response.NewError(http.StatusBadRequest, "unknown strategy")
	ErrHistoryDown     = response.NewError(http.StatusServiceUnavailable, "timing history unavailable")
)
