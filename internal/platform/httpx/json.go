package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

// DecodeJSON reads a single JSON object from the request body into dst, rejecting unknown fields.
// The returned error is ready to be written with WriteError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) *Error {
	if r.Body == nil {
		e := NewError("invalid_request", "request body is required", http.StatusBadRequest)
		return &e
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			e := NewError("invalid_request", "request body is required", http.StatusBadRequest)
			return &e
		case errors.As(err, &tooLarge):
			e := NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
			return &e
		default:
			e := NewError("invalid_json", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest)
			return &e
		}
	}
	if decoder.More() {
		e := NewError("invalid_json", "request body must contain a single JSON object", http.StatusBadRequest)
		return &e
	}
	return nil
}
