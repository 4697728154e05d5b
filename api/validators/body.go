package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/validation"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes the body into dest, rejecting unknown fields. An empty
// body leaves dest untouched so bodiless POSTs are accepted.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body too large")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return nil
}

// DecodeJSONBody decodes and then validates dest's struct tags.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	if err := DecodeJSON(w, r, dest); err != nil {
		return err
	}
	return validation.Struct(dest)
}
