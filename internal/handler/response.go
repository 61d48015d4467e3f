package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
)

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.ValidationError("Request body too large")
	}
	return apperrors.ValidationError("Invalid JSON body")
}

// pathParam returns an unescaped chi URL parameter; device ids carry '#',
// which clients send as %23.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// idParam returns a UUID path parameter. Anything that is not a UUID cannot
// name a stored row, so it is reported as not found before reaching the store.
func idParam(r *http.Request, name, resource string) (string, error) {
	id := chi.URLParam(r, name)
	if !isValidID(id) {
		return "", apperrors.NotFound(resource)
	}
	return id, nil
}

func isValidID(id string) bool {
	return uuid.Validate(id) == nil
}
