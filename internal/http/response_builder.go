package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSONResponseBuilder provides a fluent API for writing JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a builder with a 200 status and no body.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value to encode. A nil body writes no content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Wrap sets the body to {key: v}, the envelope every resource response uses.
func (b *JSONResponseBuilder) Wrap(key string, v any) *JSONResponseBuilder {
	return b.Body(map[string]any{key: v})
}

// Write encodes the response. The body is marshalled before any header is
// sent so an encoding failure can still become a 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// ErrorResponse creates {"error": <status text>} with the given status.
func ErrorResponse(statusCode int) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(map[string]string{"error": http.StatusText(statusCode)})
}

func BadRequestError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest)
}

func NotFoundError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError)
}

// UnprocessableEntityError lists every failed field and its reason.
func UnprocessableEntityError(fields map[string]string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusUnprocessableEntity).
		Body(map[string]map[string]string{"errors": fields})
}
