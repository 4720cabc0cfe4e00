// Package lifecycle persists variable definitions and keeps the variable
// graph in step with them.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/validation"
	"github.com/rafaeljc/tally/internal/variable"
)

var (
	// ErrInvalidVariable is returned for definitions that cannot be stored.
	ErrInvalidVariable = errors.New("invalid variable")

	// ErrVariableExists is returned when creating a variable with an id that
	// is already registered.
	ErrVariableExists = errors.New("variable already exists")
)

// Service is the write path for variables. Every mutation is applied to the
// graph first, so cycles are rejected before anything is persisted, and
// rolled back in the graph when persistence fails.
type Service struct {
	logger *slog.Logger
	repo   store.VariableRepository
	graph  *graph.Graph
}

// NewService creates a lifecycle service. It panics if any dependency is nil.
func NewService(logger *slog.Logger, repo store.VariableRepository, g *graph.Graph) *Service {
	validation.AssertNotNil(logger, "logger")
	validation.AssertPresent(repo, "variable repository")
	validation.AssertNotNil(g, "graph")

	return &Service{logger: logger, repo: repo, graph: g}
}

// Create registers v. An empty id is replaced by a new UUID.
func (s *Service) Create(ctx context.Context, v variable.Variable) (variable.Variable, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := validate(v); err != nil {
		return variable.Variable{}, err
	}
	if _, exists := s.graph.Variable(v.ID); exists {
		return variable.Variable{}, fmt.Errorf("%w: %s", ErrVariableExists, v.ID)
	}

	if err := s.graph.OnVariableCreated(ctx, v); err != nil {
		return variable.Variable{}, err
	}
	if err := s.repo.SaveVariable(ctx, v); err != nil {
		if rbErr := s.graph.OnVariableDeleted(ctx, v.ID); rbErr != nil {
			s.logger.Error("failed to roll back variable creation", slog.String("variable_id", v.ID), slog.Any("error", rbErr))
		}
		return variable.Variable{}, fmt.Errorf("failed to persist variable %s: %w", v.ID, err)
	}

	s.logger.Info("variable created", slog.String("variable_id", v.ID), slog.String("kind", string(v.Type.Kind())))
	return v, nil
}

// Update replaces the definition of an existing variable. Ownership is not
// editable and is carried over from the stored definition.
func (s *Service) Update(ctx context.Context, v variable.Variable) (variable.Variable, error) {
	prev, ok := s.graph.Variable(v.ID)
	if !ok {
		return variable.Variable{}, fmt.Errorf("%w: %s", graph.ErrVariableNotFound, v.ID)
	}
	if err := validate(v); err != nil {
		return variable.Variable{}, err
	}
	v.OwnerID = prev.OwnerID

	if err := s.graph.OnVariableUpdated(ctx, v); err != nil {
		return variable.Variable{}, err
	}
	if err := s.repo.SaveVariable(ctx, v); err != nil {
		if rbErr := s.graph.OnVariableUpdated(ctx, prev); rbErr != nil {
			s.logger.Error("failed to roll back variable update", slog.String("variable_id", v.ID), slog.Any("error", rbErr))
		}
		return variable.Variable{}, fmt.Errorf("failed to persist variable %s: %w", v.ID, err)
	}

	s.logger.Info("variable updated", slog.String("variable_id", v.ID))
	return v, nil
}

// Delete removes a variable and, recursively, every variable it owns that
// no remaining variable depends on. It returns the deleted ids in deletion
// order. Dependents that are not owned survive and see the deleted variable
// as Null.
//
// A persistence failure restores the failing variable in the graph and stops
// the cascade. The returned ids are then the ones already deleted from both.
func (s *Service) Delete(ctx context.Context, id string) ([]string, error) {
	if _, ok := s.graph.Variable(id); !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrVariableNotFound, id)
	}

	var deleted []string
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		prev, ok := s.graph.Variable(current)
		if !ok {
			continue
		}
		if err := s.graph.OnVariableDeleted(ctx, current); err != nil {
			return deleted, err
		}
		if err := s.repo.DeleteVariable(ctx, current); err != nil {
			// Updating drops whatever dependents cached while it was gone.
			if rbErr := s.graph.OnVariableUpdated(ctx, prev); rbErr != nil {
				s.logger.Error("failed to roll back variable deletion", slog.String("variable_id", current), slog.Any("error", rbErr))
			}
			return deleted, fmt.Errorf("failed to delete variable %s: %w", current, err)
		}
		deleted = append(deleted, current)

		for _, owned := range s.graph.Variables() {
			if owned.OwnerID == current && len(s.graph.Dependents(owned.ID)) == 0 {
				queue = append(queue, owned.ID)
			}
		}
	}

	s.logger.Info("variable deleted", slog.String("variable_id", id), slog.Any("cascade", deleted[1:]))
	return deleted, nil
}

// Trackable describes a journal field tracked by a List of entries and an
// Aggregate over it.
type Trackable struct {
	Name      string
	FormID    string
	Field     string
	Operation variable.Operation
	Filters   []filter.Filter
}

// CreateTrackable creates the List of matching entries and the Aggregate
// that reduces it. The List is owned by the Aggregate and is deleted with it.
func (s *Service) CreateTrackable(ctx context.Context, t Trackable) (aggregate, list variable.Variable, err error) {
	if strings.TrimSpace(t.FormID) == "" {
		return variable.Variable{}, variable.Variable{}, fmt.Errorf("%w: trackable form id is required", ErrInvalidVariable)
	}
	if !t.Operation.Valid() {
		return variable.Variable{}, variable.Variable{}, fmt.Errorf("%w: unknown aggregate operation %q", ErrInvalidVariable, t.Operation)
	}

	aggregateID := uuid.NewString()
	listDef := variable.List{FormID: t.FormID, Filters: t.Filters}
	if t.Field != "" {
		listDef.Fields = []variable.Field{{Key: t.Field}}
	}

	list, err = s.Create(ctx, variable.Variable{
		ID:      uuid.NewString(),
		Name:    t.Name + " entries",
		OwnerID: aggregateID,
		Type:    listDef,
	})
	if err != nil {
		return variable.Variable{}, variable.Variable{}, err
	}

	aggregate, err = s.Create(ctx, variable.Variable{
		ID:   aggregateID,
		Name: t.Name,
		Type: variable.Aggregate{Source: list.ID, Field: t.Field, Operation: t.Operation},
	})
	if err != nil {
		if _, cleanupErr := s.Delete(ctx, list.ID); cleanupErr != nil {
			s.logger.Error("failed to clean up trackable list", slog.String("variable_id", list.ID), slog.Any("error", cleanupErr))
		}
		return variable.Variable{}, variable.Variable{}, err
	}

	return aggregate, list, nil
}

func validate(v variable.Variable) error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidVariable)
	}
	if v.Type == nil {
		return fmt.Errorf("%w: type is required", ErrInvalidVariable)
	}
	if agg, ok := v.Type.(variable.Aggregate); ok && !agg.Operation.Valid() {
		return fmt.Errorf("%w: unknown aggregate operation %q", ErrInvalidVariable, agg.Operation)
	}
	return nil
}
