package controlapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/lifecycle"
	"github.com/rafaeljc/tally/internal/logger"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/variable"
)

// handleCreateVariable processes POST /api/v1/variables.
//
// The body is a variable in its wire format. A missing id is generated.
// Cycles are rejected with 422 before anything is persisted.
func (a *API) handleCreateVariable(w http.ResponseWriter, r *http.Request) {
	var v variable.Variable
	if !decodeJSON(w, r, &v) {
		return
	}

	created, err := a.variables.Create(r.Context(), v)
	if err != nil {
		a.writeVariableError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// handleListVariables processes GET /api/v1/variables. The optional kind and
// owner_id query parameters narrow the result.
func (a *API) handleListVariables(w http.ResponseWriter, r *http.Request) {
	kind := variable.Kind(r.URL.Query().Get("kind"))
	owner := r.URL.Query().Get("owner_id")

	vars := make([]variable.Variable, 0)
	for _, v := range a.graph.Variables() {
		if kind != "" && (v.Type == nil || v.Type.Kind() != kind) {
			continue
		}
		if owner != "" && v.OwnerID != owner {
			continue
		}
		vars = append(vars, v)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListResponse{Data: vars, Total: len(vars)})
}

// handleGetVariable processes GET /api/v1/variables/{id}.
func (a *API) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	v, ok := a.graph.Variable(id)
	if !ok {
		writeVariableNotFound(w, r, id)
		return
	}

	renderWithETag(w, r, v)
}

// handleUpdateVariable processes PUT /api/v1/variables/{id}. The id in the
// path wins; a conflicting id in the body is rejected.
func (a *API) handleUpdateVariable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var v variable.Variable
	if !decodeJSON(w, r, &v) {
		return
	}
	if v.ID != "" && v.ID != id {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidInput,
			Message: "Body id does not match path id",
			Details: []ErrorDetail{{Field: "id", Issue: fmt.Sprintf("expected %q", id)}},
		})
		return
	}
	v.ID = id

	updated, err := a.variables.Update(r.Context(), v)
	if err != nil {
		a.writeVariableError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, updated)
}

// handleDeleteVariable processes DELETE /api/v1/variables/{id}. Owned
// variables left without dependents are deleted with it.
func (a *API) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := a.variables.Delete(r.Context(), id)
	if err != nil {
		a.writeVariableError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeleteVariableResponse{Deleted: deleted})
}

// handleEvaluateVariable processes POST /api/v1/variables/{id}/evaluate.
//
// The response carries an ETag over the result, so polling clients can send
// If-None-Match and receive 304 while the value is unchanged.
func (a *API) handleEvaluateVariable(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req EvaluateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidJSON, Message: "Invalid JSON payload: " + err.Error()})
		return
	}

	ts, errResp := req.Scope(a.graph.Location(), a.cfg.WeekStart, time.Now())
	if errResp != nil {
		writeError(w, r, http.StatusBadRequest, *errResp)
		return
	}

	val, scope, err := a.graph.EvaluateByID(r.Context(), id, ts, graph.EvaluateOptions{
		ForceRecompute:   req.ForceRecompute,
		IgnoreFixedScope: req.IgnoreFixedScope,
	})
	if err != nil {
		a.writeVariableError(w, r, err)
		return
	}

	log.Debug("variable evaluated",
		slog.String("variable_id", id),
		slog.String("time_scope", scope.String()),
		slog.Bool("force_recompute", req.ForceRecompute),
	)

	renderWithETag(w, r, EvaluateResponse{
		VariableID: id,
		TimeScope:  scope.String(),
		Value:      primitive.Envelope{Value: primitive.OrNull(val)},
	})
}

// handleListDependents processes GET /api/v1/variables/{id}/dependents.
func (a *API) handleListDependents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := a.graph.Variable(id); !ok {
		writeVariableNotFound(w, r, id)
		return
	}

	resp := DependentsResponse{
		VariableID: id,
		Direct:     a.graph.Dependents(id),
		Transitive: a.graph.TransitiveDependents(id),
	}
	if resp.Transitive == nil {
		resp.Transitive = []string{}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleCreateTrackable processes POST /api/v1/trackables.
func (a *API) handleCreateTrackable(w http.ResponseWriter, r *http.Request) {
	var req CreateTrackableRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeError(w, r, http.StatusBadRequest, *errResp)
		return
	}

	agg, list, err := a.variables.CreateTrackable(r.Context(), lifecycle.Trackable{
		Name:      req.Name,
		FormID:    req.FormID,
		Field:     req.Field,
		Operation: req.Operation,
		Filters:   req.Filters,
	})
	if err != nil {
		a.writeVariableError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, TrackableResponse{Aggregate: agg, List: list})
}

// writeVariableError maps lifecycle and graph errors to HTTP responses.
func (a *API) writeVariableError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, graph.ErrVariableNotFound):
		writeError(w, r, http.StatusNotFound, ErrorResponse{Code: CodeVariableNotFound, Message: err.Error()})
	case errors.Is(err, lifecycle.ErrVariableExists):
		writeError(w, r, http.StatusConflict, ErrorResponse{Code: CodeVariableExists, Message: err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidVariable):
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidInput, Message: err.Error()})
	case errors.Is(err, variable.ErrUnknownVariableType):
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeUnknownType, Message: err.Error()})
	case errors.Is(err, graph.ErrCyclicDependency):
		writeError(w, r, http.StatusUnprocessableEntity, ErrorResponse{Code: CodeCyclicDependency, Message: err.Error()})
	default:
		logger.FromContext(r.Context()).Error("variable operation failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "Internal server error"})
	}
}

func writeVariableNotFound(w http.ResponseWriter, r *http.Request, id string) {
	writeError(w, r, http.StatusNotFound, ErrorResponse{
		Code:    CodeVariableNotFound,
		Message: fmt.Sprintf("Variable %q not found", id),
	})
}

// renderWithETag writes v as JSON with a strong ETag derived from the body,
// answering 304 when the client already holds it.
func renderWithETag(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to encode response", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "Internal server error"})
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
