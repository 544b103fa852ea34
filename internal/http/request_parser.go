package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"tracker/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed request body")

// decodeEnvelope reads a body of the form {key: T}. A missing key leaves the
// zero T, which validation then reports field by field.
func decodeEnvelope[T any](w http.ResponseWriter, r *http.Request, key string) (T, error) {
	var zero T

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return zero, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return zero, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	inner, ok := envelope[key]
	if !ok || string(inner) == "null" {
		return zero, nil
	}

	var v T
	if err := json.Unmarshal(inner, &v); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", errMalformedBody, key, err)
	}
	return v, nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

// parseRecordFilter reads the optional userId and categoryId query
// parameters. Blank values place no restriction.
func parseRecordFilter(query url.Values) (core.RecordFilter, error) {
	var filter core.RecordFilter
	var err error
	if filter.UserID, err = optionalUUID(query, "userId"); err != nil {
		return core.RecordFilter{}, err
	}
	if filter.CategoryID, err = optionalUUID(query, "categoryId"); err != nil {
		return core.RecordFilter{}, err
	}
	return filter, nil
}

func optionalUUID(query url.Values, key string) (*uuid.UUID, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return &id, nil
}

// sanitizeInput removes control characters other than tab, newline and
// carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
