package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// ErrEmptyBody is returned by DecodeJSON when the request carries no body
var ErrEmptyBody = errors.New("request body is required")

// DecodeJSON reads a single JSON object from the body into dest. Unknown fields and
// trailing data are rejected.
func DecodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after object")
	}
	return nil
}

// ParseJSONOrError decodes the body into dest, replying 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := DecodeJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParseOptionalJSONOrError is ParseJSONOrError for routes whose body may be omitted. dest
// is left untouched when there is no body.
func ParseOptionalJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := DecodeJSON(r, dest)
	if err == nil || errors.Is(err, ErrEmptyBody) {
		return true
	}
	WriteBadRequest(w, err.Error())
	return false
}

// ParsePathStringOrError returns the trimmed path variable key, replying 400 when blank
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		WriteBadRequest(w, fmt.Sprintf("missing path parameter: %s", key))
		return "", false
	}
	return val, true
}
