// Package responses writes the JSON envelopes every endpoint shares:
// {"data": ...} on success and {"error": {...}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Client-correctable codes expose their own message; everything else answers
// with the code's public message so upstream text never leaks.
var ownMessage = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:   true,
	pkgerrors.CodePrecondition: true,
	pkgerrors.CodeUnauthorized: true,
	pkgerrors.CodeNotFound:     true,
	pkgerrors.CodeConflict:     true,
	pkgerrors.CodeSignature:    true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteRaw skips the envelope, for callers like webhooks that expect a fixed
// acknowledgement body.
func WriteRaw(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	coded := pkgerrors.As(err)
	if coded == nil {
		coded = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(coded.Code())

	body := APIError{Code: string(coded.Code()), Message: meta.PublicMessage}
	if ownMessage[coded.Code()] && coded.Message() != "" {
		body.Message = coded.Message()
	}
	if meta.DetailsAllowed {
		body.Details = coded.Details()
	}

	if logg != nil {
		logError(ctx, logg, err, coded, meta.HTTPStatus)
	}
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

func logError(ctx context.Context, logg *logger.Logger, err error, coded *pkgerrors.Error, status int) {
	fields := pkgerrors.Dump(err).Fields()
	fields["http_status"] = status
	if details, ok := coded.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}
