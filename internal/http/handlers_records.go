package http

import (
	"net/http"

	"tracker/internal/core"
	"tracker/internal/log"
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r.URL.Query())
	if err != nil {
		BadRequestError().Write(w)
		return
	}

	records, err := s.deps.Records.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Wrap("records", orEmpty(records)).Write(w)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	in, err := decodeEnvelope[core.NewRecord](w, r, "record")
	if err != nil {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Rejected record body", log.FieldError, err.Error())
		BadRequestError().Write(w)
		return
	}

	record, err := s.deps.Records.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}

	log.NewStructuredLogger(log.FromContext(r.Context())).LogRecordCreated(r.Context(),
		record.ID.String(), record.UserID.String(), record.CategoryID.String(), record.Sum.String())
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/records/"+record.ID.String()).
		Wrap("record", record).
		Write(w)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError().Write(w)
		return
	}

	record, err := s.deps.Records.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Wrap("record", record).Write(w)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError().Write(w)
		return
	}

	if err := s.deps.Records.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
