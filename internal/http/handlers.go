package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tracker/internal/core"
	"tracker/internal/log"
)

const healthTimeout = 2 * time.Second

// NamedStore is the contract shared by users and categories.
type NamedStore[T any] interface {
	Create(ctx context.Context, name string) (T, error)
	Get(ctx context.Context, id uuid.UUID) (T, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]T, error)
}

type (
	UserStore     = NamedStore[core.User]
	CategoryStore = NamedStore[core.Category]
)

type RecordStore interface {
	Create(ctx context.Context, in core.NewRecord) (core.Record, error)
	Get(ctx context.Context, id uuid.UUID) (core.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter core.RecordFilter) ([]core.Record, error)
}

type healthResponse struct {
	Status   string         `json:"status"`
	Services healthServices `json:"services"`
}

type healthServices struct {
	DB string `json:"db"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Welcome to the expense tracker!"))
}

// handleHealth reports 200 when the backend answers a ping and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Services: healthServices{DB: "up"}}
	status := http.StatusOK

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Health check failed",
				log.FieldError, err.Error())
			resp = healthResponse{Status: "unhealthy", Services: healthServices{DB: "down"}}
			status = http.StatusServiceUnavailable
		}
	}

	NewJSONResponse().Status(status).Body(resp).Write(w)
}

// writeServiceError maps the error taxonomy onto status codes. Storage
// failures and anything unexpected are logged in full and answered with a
// generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if core.IsNotFound(err) {
		NotFoundError().Write(w)
		return
	}
	if ve, ok := core.AsValidation(err); ok {
		UnprocessableEntityError(ve.Fields).Write(w)
		return
	}

	errorType := log.ErrorTypeInternal
	if core.IsStorage(err) {
		errorType = log.ErrorTypeDatabase
	}
	fields := log.NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithErrorType(errorType)
	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, op, fields)
	InternalServerError().Write(w)
}

// orEmpty keeps empty lists rendering as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// namedHandlers serves one user-like resource under /<plural>.
type namedHandlers[T any] struct {
	store    NamedStore[T]
	singular string
	plural   string
}

type nameInput struct {
	Name string `json:"name"`
}

func (h namedHandlers[T]) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Wrap(h.plural, orEmpty(items)).Write(w)
}

func (h namedHandlers[T]) create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeEnvelope[nameInput](w, r, h.singular)
	if err != nil {
		BadRequestError().Write(w)
		return
	}

	item, err := h.store.Create(r.Context(), sanitizeInput(in.Name))
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Wrap(h.singular, item).Write(w)
}

func (h namedHandlers[T]) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError().Write(w)
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Wrap(h.singular, item).Write(w)
}

func (h namedHandlers[T]) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError().Write(w)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
