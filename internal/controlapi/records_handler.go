package controlapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/tally/internal/logger"
	"github.com/rafaeljc/tally/internal/record"
)

// commitFunc performs one record write and returns the affected record, or a
// nil record when nothing was changed.
type commitFunc func(ctx context.Context) (record.Record, record.Action, error)

// applyRecord runs commit and forwards the resulting mutation to the graph
// while holding recordMu. When the graph cannot patch its indices, every
// index is dropped so the next evaluations recompute from the records.
func (a *API) applyRecord(ctx context.Context, commit commitFunc) (record.Record, record.Action, error) {
	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	rec, action, err := commit(ctx)
	if err != nil || rec == nil {
		return rec, action, err
	}

	if err := a.graph.OnRecordAction(ctx, rec, action); err != nil {
		logger.FromContext(ctx).Error("failed to apply record action, dropping all indices",
			slog.String("record_id", rec.RecordID()),
			slog.String("action", action.String()),
			slog.String("error", err.Error()),
		)
		if dropErr := a.graph.DeleteIndices(ctx); dropErr != nil {
			return rec, action, fmt.Errorf("failed to drop indices after graph error (%v): %w", err, dropErr)
		}
	}
	return rec, action, nil
}

// handlePutJournalEntry processes PUT /api/v1/journal-entries/{id}.
func (a *API) handlePutJournalEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var e record.JournalEntry
	if !decodeJSON(w, r, &e) {
		return
	}
	if e.ID != "" && e.ID != id {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidInput, Message: "Body id does not match path id"})
		return
	}
	if e.FormID == "" {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidInput,
			Message: "Invalid journal entry",
			Details: []ErrorDetail{{Field: "form_id", Issue: "is required"}},
		})
		return
	}
	e.ID = id

	_, action, err := a.applyRecord(r.Context(), func(ctx context.Context) (record.Record, record.Action, error) {
		action, err := a.records.PutJournalEntry(ctx, e)
		return e, action, err
	})
	if err != nil {
		writeRecordError(w, r, err)
		return
	}

	writeRecordAction(w, r, id, action)
}

// handleDeleteJournalEntry processes DELETE /api/v1/journal-entries/{id}.
func (a *API) handleDeleteJournalEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, action, err := a.applyRecord(r.Context(), func(ctx context.Context) (record.Record, record.Action, error) {
		removed, err := a.records.RemoveJournalEntry(ctx, id)
		if err != nil || removed == nil {
			return nil, 0, err
		}
		return *removed, record.Deleted, nil
	})
	if err != nil {
		writeRecordError(w, r, err)
		return
	}
	if rec == nil {
		writeRecordNotFound(w, r, "journal entry", id)
		return
	}

	writeRecordAction(w, r, id, action)
}

// handlePutTagEntry processes PUT /api/v1/tag-entries/{id}.
func (a *API) handlePutTagEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var e record.TagEntry
	if !decodeJSON(w, r, &e) {
		return
	}
	if e.ID != "" && e.ID != id {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidInput, Message: "Body id does not match path id"})
		return
	}
	if e.TagID == "" {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidInput,
			Message: "Invalid tag entry",
			Details: []ErrorDetail{{Field: "tag_id", Issue: "is required"}},
		})
		return
	}
	e.ID = id

	_, action, err := a.applyRecord(r.Context(), func(ctx context.Context) (record.Record, record.Action, error) {
		action, err := a.records.PutTagEntry(ctx, e)
		return e, action, err
	})
	if err != nil {
		writeRecordError(w, r, err)
		return
	}

	writeRecordAction(w, r, id, action)
}

// handleDeleteTagEntry processes DELETE /api/v1/tag-entries/{id}.
func (a *API) handleDeleteTagEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, action, err := a.applyRecord(r.Context(), func(ctx context.Context) (record.Record, record.Action, error) {
		removed, err := a.records.RemoveTagEntry(ctx, id)
		if err != nil || removed == nil {
			return nil, 0, err
		}
		return *removed, record.Deleted, nil
	})
	if err != nil {
		writeRecordError(w, r, err)
		return
	}
	if rec == nil {
		writeRecordNotFound(w, r, "tag entry", id)
		return
	}

	writeRecordAction(w, r, id, action)
}

// handleDeleteIndices processes DELETE /api/v1/indices. It is meant for
// operators after records were bulk imported behind the engine's back.
func (a *API) handleDeleteIndices(w http.ResponseWriter, r *http.Request) {
	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	if err := a.graph.DeleteIndices(r.Context()); err != nil {
		writeRecordError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeRecordAction(w http.ResponseWriter, r *http.Request, id string, action record.Action) {
	status := http.StatusOK
	if action == record.Created {
		status = http.StatusCreated
	}
	render.Status(r, status)
	render.JSON(w, r, RecordResponse{ID: id, Action: action.String()})
}

func writeRecordError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("record operation failed", slog.String("error", err.Error()))
	writeError(w, r, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "Internal server error"})
}

func writeRecordNotFound(w http.ResponseWriter, r *http.Request, kind, id string) {
	writeError(w, r, http.StatusNotFound, ErrorResponse{
		Code:    CodeRecordNotFound,
		Message: fmt.Sprintf("No %s with id %q", kind, id),
	})
}
