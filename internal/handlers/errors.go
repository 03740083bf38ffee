package handlers

import (
	"errors"
	"net/http"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/form"
	"github.com/example/mpox-check/internal/imageprocessor"
	"github.com/example/mpox-check/internal/session"
	"github.com/example/mpox-check/internal/sessiontoken"
	"github.com/example/mpox-check/internal/usecase"
	"github.com/example/mpox-check/internal/wizard"
)

// ErrUploadTooLarge indicates a request body over the configured upload limit.
var ErrUploadTooLarge = errors.New("upload exceeds maximum size")

// ErrMalformedRequest indicates a body that could not be parsed.
var ErrMalformedRequest = errors.New("malformed request")

// MapHTTPStatus maps domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sessiontoken.ErrMissingToken), errors.Is(err, sessiontoken.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, wizard.ErrIllegalTransition), errors.Is(err, wizard.ErrPredictionRecorded):
		return http.StatusConflict
	case errors.Is(err, imageprocessor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, imageprocessor.ErrEmptyUpload), errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, imageprocessor.ErrImageDecode), errors.Is(err, imageprocessor.ErrPreprocessing), form.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, classifier.ErrModelUnavailable), errors.Is(err, usecase.ErrMetricsDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// userMessage is the text shown to the user for an error.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrUploadTooLarge):
		return "The uploaded image is too large."
	case errors.Is(err, session.ErrNotFound):
		return "Your session has expired. Please start again."
	case errors.Is(err, wizard.ErrIllegalTransition):
		return "That step is not available from the current page."
	case errors.Is(err, wizard.ErrPredictionRecorded):
		return "A result has already been computed for this session."
	case errors.Is(err, imageprocessor.ErrUnsupportedFormat):
		return "Please upload a JPG or PNG image."
	case errors.Is(err, imageprocessor.ErrEmptyUpload):
		return "The uploaded file is empty."
	case errors.Is(err, ErrMalformedRequest):
		return "The request could not be read."
	case errors.Is(err, imageprocessor.ErrImageDecode):
		return "The uploaded file could not be read as an image. Please upload another image."
	case errors.Is(err, imageprocessor.ErrPreprocessing):
		return "The uploaded image could not be processed. Please upload another image."
	case errors.Is(err, classifier.ErrModelUnavailable):
		return "The prediction model is currently unavailable. Please try again later."
	case errors.Is(err, usecase.ErrMetricsDisabled):
		return "Metrics are not enabled."
	case form.IsValidationError(err):
		return "Please correct the highlighted fields."
	}
	return "internal server error"
}
