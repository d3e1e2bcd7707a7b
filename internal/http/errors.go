package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/garden-assistant-service/internal/client"
	"github.com/kjstillabower/garden-assistant-service/internal/observability"
	"github.com/kjstillabower/garden-assistant-service/internal/service"
	"github.com/kjstillabower/garden-assistant-service/internal/validation"
)

// Stable error codes returned in the "code" field.
const (
	codeMissingQuery        = "MISSING_QUERY"
	codeQueryTooLong        = "QUERY_TOO_LONG"
	codeMissingImage        = "MISSING_IMAGE"
	codeMissingFilename     = "MISSING_FILENAME"
	codeEmptyImage          = "EMPTY_IMAGE"
	codeImageTooLarge       = "IMAGE_TOO_LARGE"
	codeNoMatch             = "NO_MATCH"
	codeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	codeUpstreamError       = "UPSTREAM_ERROR"
	codeRateLimited         = "RATE_LIMITED"
	codeInternal            = "INTERNAL_ERROR"
)

const msgNoImageUploaded = "No image file uploaded."

// operation carries the per-route user-facing messages. Upstream detail never reaches them.
type operation struct {
	name            string
	missingMessage  string
	tooLongMessage  string
	transportStatus int
	transportMsg    string
	logicMsg        string
}

var (
	opAsk = operation{
		name:            "ask",
		missingMessage:  "No query provided.",
		tooLongMessage:  "Query is too long.",
		transportStatus: http.StatusInternalServerError,
		transportMsg:    "Could not get an answer right now. Please try again later.",
		logicMsg:        "Could not get an answer right now. Please try again later.",
	}
	opDiagnose = operation{
		name:            "diagnose",
		missingMessage:  "No description provided.",
		tooLongMessage:  "Description is too long.",
		transportStatus: http.StatusInternalServerError,
		transportMsg:    "Diagnosis failed. Please try again later.",
		logicMsg:        "Diagnosis failed. Please try again later.",
	}
	opIdentify = operation{
		name:            "identify",
		missingMessage:  msgNoImageUploaded,
		transportStatus: http.StatusBadGateway,
		transportMsg:    "Plant identification service is unavailable.",
		logicMsg:        "Plant identification failed.",
	}
)

// writeOperationError is the single place service and upstream errors become HTTP statuses.
// Validation failures are 400 and logged at debug; upstream failures are logged at warn
// with operation, upstream, category and cause.
func (h *Handler) writeOperationError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	logger := observability.LoggerFromContext(r.Context())

	var ve *service.ValidationError
	if errors.As(err, &ve) {
		logger.Debug("request rejected",
			zap.String("operation", op.name),
			zap.String("field", ve.Field),
			zap.Error(err))
		status, code, msg := validationResponse(op, ve.Err)
		writeError(w, r, status, code, msg)
		return
	}

	if ue, ok := client.AsUpstreamError(err); ok {
		fields := []zap.Field{
			zap.String("operation", op.name),
			zap.String("upstream", ue.Upstream),
			zap.String("kind", ue.Kind.String()),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		}
		if ue.StatusCode != 0 {
			fields = append(fields, zap.Int("upstream_status", ue.StatusCode))
		}
		if errors.Is(err, context.Canceled) {
			logger.Debug("request canceled by client", fields...)
		} else {
			logger.Warn("upstream call failed", fields...)
		}
		if ue.Kind == client.KindLogic {
			writeError(w, r, http.StatusInternalServerError, codeUpstreamError, op.logicMsg)
			return
		}
		writeError(w, r, op.transportStatus, codeUpstreamUnavailable, op.transportMsg)
		return
	}

	logger.Error("unexpected error", zap.String("operation", op.name), zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, codeInternal, op.logicMsg)
}

func validationResponse(op operation, err error) (status int, code, message string) {
	switch {
	case errors.Is(err, validation.ErrQueryTooLong):
		return http.StatusBadRequest, codeQueryTooLong, op.tooLongMessage
	case errors.Is(err, validation.ErrUploadNoFilename):
		return http.StatusBadRequest, codeMissingFilename, "No image file selected."
	case errors.Is(err, validation.ErrUploadEmpty):
		return http.StatusBadRequest, codeEmptyImage, "Uploaded image is empty."
	case errors.Is(err, validation.ErrUploadMissing):
		return http.StatusBadRequest, codeMissingImage, msgNoImageUploaded
	default:
		return http.StatusBadRequest, codeMissingQuery, op.missingMessage
	}
}
