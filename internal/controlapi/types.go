package controlapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	CodeInvalidJSON      = "ERR_INVALID_JSON"
	CodeInvalidInput     = "ERR_INVALID_INPUT"
	CodeInvalidTimeScope = "ERR_INVALID_TIME_SCOPE"
	CodeUnknownType      = "ERR_UNKNOWN_VARIABLE_TYPE"
	CodeCyclicDependency = "ERR_CYCLIC_DEPENDENCY"
	CodeVariableNotFound = "ERR_VARIABLE_NOT_FOUND"
	CodeVariableExists   = "ERR_VARIABLE_EXISTS"
	CodeRecordNotFound   = "ERR_RECORD_NOT_FOUND"
	CodeNotFound         = "ERR_NOT_FOUND"
	CodeMethodNotAllowed = "ERR_METHOD_NOT_ALLOWED"
	CodeUnauthorized     = "ERR_UNAUTHORIZED"
	CodeInternal         = "ERR_INTERNAL"
)

// EvaluateRequest selects the time scope of an evaluation. Either TimeScope
// (the serialized form) or Period is given; neither means Forever.
type EvaluateRequest struct {
	// TimeScope is a serialized scope, e.g. "SIMPLE|WEEKLY:1709510400000".
	TimeScope string `json:"time_scope,omitempty"`

	// Period builds a Simple scope containing At.
	Period timescope.Period `json:"period,omitempty"`

	// At is a unix millisecond timestamp. Defaults to the request time.
	At *int64 `json:"at,omitempty"`

	// WeekStart overrides the configured week start for weekly periods.
	WeekStart timescope.WeekStart `json:"week_start,omitempty"`

	ForceRecompute   bool `json:"force_recompute,omitempty"`
	IgnoreFixedScope bool `json:"ignore_fixed_scope,omitempty"`
}

// Scope resolves the requested time scope in loc.
func (r *EvaluateRequest) Scope(loc *time.Location, defaultWeekStart timescope.WeekStart, now time.Time) (timescope.TimeScope, *ErrorResponse) {
	if r.TimeScope != "" && r.Period != "" {
		return nil, &ErrorResponse{Code: CodeInvalidTimeScope, Message: "time_scope and period are mutually exclusive"}
	}

	if r.TimeScope != "" {
		ts, err := timescope.ParseInLocation(r.TimeScope, loc)
		if err != nil {
			return nil, &ErrorResponse{Code: CodeInvalidTimeScope, Message: err.Error()}
		}
		return ts, nil
	}

	if r.Period == "" {
		return timescope.Forever{}, nil
	}
	if !r.Period.Valid() {
		return nil, &ErrorResponse{Code: CodeInvalidTimeScope, Message: fmt.Sprintf("unknown period %q", r.Period)}
	}

	weekStart := defaultWeekStart
	if r.WeekStart != "" {
		if !r.WeekStart.Valid() {
			return nil, &ErrorResponse{Code: CodeInvalidTimeScope, Message: fmt.Sprintf("unknown week start %q", r.WeekStart)}
		}
		weekStart = r.WeekStart
	}

	at := now
	if r.At != nil {
		at = time.UnixMilli(*r.At)
	}
	return timescope.NewSimple(r.Period, weekStart, at, loc), nil
}

// EvaluateResponse carries an evaluation result in the primitive envelope
// format together with the scope it was computed in.
type EvaluateResponse struct {
	VariableID string             `json:"variable_id"`
	TimeScope  string             `json:"time_scope"`
	Value      primitive.Envelope `json:"value"`
}

// DependentsResponse lists the variables that read from a variable.
type DependentsResponse struct {
	VariableID string   `json:"variable_id"`
	Direct     []string `json:"direct"`
	Transitive []string `json:"transitive"`
}

// DeleteVariableResponse reports every variable removed by a cascading delete.
type DeleteVariableResponse struct {
	Deleted []string `json:"deleted"`
}

// CreateTrackableRequest defines the payload of POST /trackables.
type CreateTrackableRequest struct {
	Name      string             `json:"name"`
	FormID    string             `json:"form_id"`
	Field     string             `json:"field,omitempty"`
	Operation variable.Operation `json:"operation"`
	Filters   []filter.Filter    `json:"filters,omitempty"`
}

// Sanitize trims whitespace and normalizes the operation case.
func (r *CreateTrackableRequest) Sanitize() {
	r.Name = strings.TrimSpace(r.Name)
	r.FormID = strings.TrimSpace(r.FormID)
	r.Field = strings.TrimSpace(r.Field)
	r.Operation = variable.Operation(strings.ToUpper(strings.TrimSpace(string(r.Operation))))
}

// Validate checks the request against the rules a trackable must satisfy.
func (r *CreateTrackableRequest) Validate() *ErrorResponse {
	var details []ErrorDetail
	if r.Name == "" {
		details = append(details, ErrorDetail{Field: "name", Issue: "is required"})
	}
	if r.FormID == "" {
		details = append(details, ErrorDetail{Field: "form_id", Issue: "is required"})
	}
	if !r.Operation.Valid() {
		details = append(details, ErrorDetail{Field: "operation", Issue: "must be one of SUM, MEAN, COUNT"})
	}
	if r.Operation != variable.Count && r.Field == "" {
		details = append(details, ErrorDetail{Field: "field", Issue: "is required unless operation is COUNT"})
	}
	if len(details) > 0 {
		return &ErrorResponse{Code: CodeInvalidInput, Message: "Invalid trackable", Details: details}
	}
	return nil
}

// TrackableResponse returns both variables created for a trackable.
type TrackableResponse struct {
	Aggregate variable.Variable `json:"aggregate"`
	List      variable.Variable `json:"list"`
}

// RecordResponse reports the action a record mutation resolved to.
type RecordResponse struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// ListResponse wraps list endpoints.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// decodeJSON decodes the request body into dst, reporting failures as an
// ERR_INVALID_JSON response.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if errors.Is(err, variable.ErrUnknownVariableType) {
			writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: CodeUnknownType, Message: err.Error()})
			return false
		}
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidJSON,
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return false
	}
	return true
}
