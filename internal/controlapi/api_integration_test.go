//go:build integration

package controlapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/controlapi"
	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/lifecycle"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/testsupport"
)

// TestControlPlaneAPI_Integration validates the full HTTP request lifecycle
// against PostgreSQL: variables, records and indices all live in the database.
func TestControlPlaneAPI_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	repo := store.NewPostgresStore(pgContainer.DB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := graph.New(logger, repo, repo, graph.Options{Location: time.UTC})
	require.NoError(t, g.Load(ctx, repo))
	api := controlapi.NewAPI(logger, g, lifecycle.NewService(logger, repo, g), repo, controlapi.Config{SkipAuth: true})

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		api.Router.ServeHTTP(rr, req)
		return rr
	}

	var trackable controlapi.TrackableResponse

	t.Run("POST /trackables persists both variables", func(t *testing.T) {
		rr := send(http.MethodPost, "/api/v1/trackables", `{"name":"Distance","form_id":"run","field":"km","operation":"SUM"}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &trackable))

		all, err := repo.AllVariables(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("PUT /journal-entries patches the list and invalidates the aggregate", func(t *testing.T) {
		path := "/api/v1/variables/" + trackable.Aggregate.ID + "/evaluate"

		rr := send(http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		for id, km := range map[string]float64{"e1": 3, "e2": 4} {
			body := `{"form_id":"run","timestamp":1709280000000,"answers":{"km":{"type":"NUMBER","value":` + jsonNumber(km) + `}}}`
			require.Equal(t, http.StatusCreated, send(http.MethodPut, "/api/v1/journal-entries/"+id, body).Code)
		}

		listIdx, err := repo.IndexByVariableAndScope(ctx, trackable.List.ID, "FOREVER|")
		require.NoError(t, err)
		require.NotNil(t, listIdx, "list index must be patched in place")
		assert.Len(t, listIdx.Value, 2)

		aggIdx, err := repo.IndexByVariableAndScope(ctx, trackable.Aggregate.ID, "FOREVER|")
		require.NoError(t, err)
		assert.Nil(t, aggIdx, "aggregate index must be invalidated")

		rr = send(http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var resp controlapi.EvaluateResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, primitive.Number(7), resp.Value.Value)
	})

	t.Run("graph reload restores the node set", func(t *testing.T) {
		reloaded := graph.New(logger, repo, repo, graph.Options{})
		require.NoError(t, reloaded.Load(ctx, repo))
		assert.Len(t, reloaded.Variables(), 2)
		assert.Equal(t, []string{trackable.Aggregate.ID}, reloaded.Dependents(trackable.List.ID))
	})

	t.Run("DELETE /variables cascades to the owned list", func(t *testing.T) {
		rr := send(http.MethodDelete, "/api/v1/variables/"+trackable.Aggregate.ID, "")
		require.Equal(t, http.StatusOK, rr.Code)

		all, err := repo.AllVariables(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		indices, err := repo.IndicesByVariableID(ctx, trackable.Aggregate.ID)
		require.NoError(t, err)
		assert.Empty(t, indices)
	})
}

func jsonNumber(f float64) string {
	raw, _ := json.Marshal(f)
	return string(raw)
}
