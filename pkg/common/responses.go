package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "finsync/pkg/errors"
)

// DefaultMaxBodyBytes bounds request bodies; snapshots are whole ledgers.
const DefaultMaxBodyBytes int64 = 8 << 20

// RespondJSON writes data as the bare JSON body. The sync wire contract has no envelope.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ParseJSONBody decodes the request body into v with a size limit.
// Malformed or oversized bodies become validation errors.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.NewValidationError(fmt.Sprintf("request body exceeds %d bytes", maxBytes))
		case errors.Is(err, io.EOF):
			return apperrors.NewValidationError("request body is empty")
		default:
			return apperrors.NewValidationError("invalid JSON body").WithCause(err)
		}
	}
	return nil
}
