/*
Package req binds HTTP request bodies into Go values.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"convochat/internal/pkg/errs"
)

// MaxJSONBodySize caps the body accepted by BindJSON.
const MaxJSONBodySize int64 = 1 << 20

// BindJSON decodes the request body into dst, rejecting unknown fields and trailing data.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
