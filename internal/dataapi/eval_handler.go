package dataapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/logger"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/timescope"
)

// Evaluate evaluates a registered variable in the requested time scope.
// Results come from the index cache when present.
//
// It returns:
//   - OK with the value envelope and the scope it was computed in.
//   - NOT_FOUND if the variable id is not registered.
//   - INVALID_ARGUMENT if the variable id is missing or the scope is malformed.
//   - FAILED_PRECONDITION if the stored graph contains a cycle.
//   - INTERNAL if an index or record store call failed.
func (a *API) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := parseEvaluateRequest(req)
	if err != nil {
		logger.FromContext(ctx).Warn("bad request", slog.String("error", err.Error()))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx = logger.With(ctx, slog.String("variable_id", in.variableID))
	log := logger.FromContext(ctx)

	ts := timescope.TimeScope(timescope.Forever{})
	if in.timeScope != "" {
		ts, err = timescope.ParseInLocation(in.timeScope, a.graph.Location())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	log.Debug("evaluating variable", slog.String("time_scope", ts.String()))

	val, scope, err := a.graph.EvaluateByID(ctx, in.variableID, ts, graph.EvaluateOptions{
		ForceRecompute:   in.forceRecompute,
		IgnoreFixedScope: in.ignoreFixedScope,
	})
	switch {
	case errors.Is(err, graph.ErrVariableNotFound):
		return nil, status.Error(codes.NotFound, "variable not found")
	case errors.Is(err, graph.ErrCyclicDependency):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		log.Error("failed to evaluate variable", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to evaluate variable")
	}

	value, err := envelopeValue(val)
	if err != nil {
		log.Error("failed to encode value", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode value")
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"variable_id": structpb.NewStringValue(in.variableID),
		"time_scope":  structpb.NewStringValue(scope.String()),
		"value":       value,
	}}, nil
}

type evaluateRequest struct {
	variableID       string
	timeScope        string
	forceRecompute   bool
	ignoreFixedScope bool
}

func parseEvaluateRequest(req *structpb.Struct) (evaluateRequest, error) {
	var out evaluateRequest
	fields := req.GetFields()

	for name, v := range fields {
		var err error
		switch name {
		case "variable_id":
			out.variableID, err = stringField(name, v)
		case "time_scope":
			out.timeScope, err = stringField(name, v)
		case "force_recompute":
			out.forceRecompute, err = boolField(name, v)
		case "ignore_fixed_scope":
			out.ignoreFixedScope, err = boolField(name, v)
		default:
			err = fmt.Errorf("unknown field %q", name)
		}
		if err != nil {
			return evaluateRequest{}, err
		}
	}

	if out.variableID == "" {
		return evaluateRequest{}, errors.New("variable_id is required")
	}
	return out, nil
}

func stringField(name string, v *structpb.Value) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return s.StringValue, nil
}

func boolField(name string, v *structpb.Value) (bool, error) {
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b.BoolValue, nil
}

// envelopeValue converts v into the Struct form of its JSON envelope.
func envelopeValue(v primitive.Value) (*structpb.Value, error) {
	raw, err := primitive.Marshal(primitive.OrNull(v))
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(s), nil
}

// DecodeValue converts the value field of an Evaluate response back into a
// primitive value.
func DecodeValue(resp *structpb.Struct) (primitive.Value, error) {
	v, ok := resp.GetFields()["value"]
	if !ok {
		return nil, errors.New("response has no value")
	}
	raw, err := json.Marshal(v.AsInterface())
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return primitive.Unmarshal(raw)
}
