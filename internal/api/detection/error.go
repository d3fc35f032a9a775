package detection

import (
	"net/http"

	"detectbench/pkg/response"
)

var (
	ErrFileMissing         = response.NewError(http.StatusBadRequest, "file field missing")
	ErrEmptyFilename       = response.NewError(http.StatusBadRequest, "empty filename")
	ErrUnsupportedFileType = response.NewError(http.StatusBadRequest, "unsupported file type")
	ErrFileTooLarge        = response.NewError(http.StatusRequestEntityTooLarge, "file too large")
	ErrUnknownStrategy     = response.NewError(http.StatusBadRequest, "unknown strategy")
	ErrInvalidForm         = response.NewError(http.StatusBadRequest, "invalid form fields")
	ErrInvalidImage        = response.NewError(http.StatusBadRequest, "cannot decode image")
	ErrSaveUpload          = response.NewError(http.StatusInternalServerError, "failed to save upload")
	ErrEngineUnavailable   = response.NewError(http.StatusInternalServerError, "detection engine unavailable")
	ErrInferenceFailed     = response.NewError(http.StatusInternalServerError, "inference failed")
	ErrRenderFailed        = response.NewError(http.StatusInternalServerError, "failed to render detections")
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
)
