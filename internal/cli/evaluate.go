package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/tally/internal/controlapi"
	"github.com/rafaeljc/tally/internal/dataapi"
	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/timescope"
)

type evaluateFlags struct {
	scope     string
	period    string
	weekStart string
	at        int64
	force     bool
	remote    string
	timeout   time.Duration
}

var evalFlags evaluateFlags

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <variable-id>",
	Short: "Evaluate a variable locally or against a running Data Plane",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalFlags.scope, "scope", "", "serialized time scope, e.g. SIMPLE|DAILY:1709251200000")
	f.StringVar(&evalFlags.period, "period", "", "calendar period containing --at (DAILY, WEEKLY, MONTHLY, YEARLY)")
	f.StringVar(&evalFlags.weekStart, "week-start", "", "first day of WEEKLY periods (default from TALLY_ENGINE_WEEK_START)")
	f.Int64Var(&evalFlags.at, "at", 0, "unix milliseconds inside --period (default now)")
	f.BoolVar(&evalFlags.force, "force", false, "bypass stored indices")
	f.StringVar(&evalFlags.remote, "remote", "", "Data Plane address; evaluates locally when empty")
	f.DurationVar(&evalFlags.timeout, "timeout", 10*time.Second, "remote call timeout")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	loc, err := a.cfg.Engine.Location()
	if err != nil {
		return err
	}
	ts, err := evalFlags.timeScope(loc, a.cfg.Engine.DefaultWeekStart())
	if err != nil {
		return err
	}

	var resp controlapi.EvaluateResponse
	if evalFlags.remote != "" {
		resp, err = evaluateRemote(cmd.Context(), args[0], ts)
	} else {
		defer a.close()
		if err := a.open(cmd.Context()); err != nil {
			return err
		}
		resp, err = evaluateLocal(cmd.Context(), a.graph, args[0], ts)
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func (f evaluateFlags) timeScope(loc *time.Location, defaultWeekStart timescope.WeekStart) (timescope.TimeScope, error) {
	req := controlapi.EvaluateRequest{
		TimeScope: f.scope,
		Period:    timescope.Period(f.period),
		WeekStart: timescope.WeekStart(f.weekStart),
	}
	if f.at != 0 {
		req.At = &f.at
	}

	ts, errResp := req.Scope(loc, defaultWeekStart, time.Now())
	if errResp != nil {
		return nil, fmt.Errorf("invalid time scope: %s", errResp.Message)
	}
	return ts, nil
}

func evaluateLocal(ctx context.Context, g *graph.Graph, id string, ts timescope.TimeScope) (controlapi.EvaluateResponse, error) {
	val, scope, err := g.EvaluateByID(ctx, id, ts, graph.EvaluateOptions{ForceRecompute: evalFlags.force})
	if err != nil {
		return controlapi.EvaluateResponse{}, fmt.Errorf("failed to evaluate %s: %w", id, err)
	}
	return controlapi.EvaluateResponse{
		VariableID: id,
		TimeScope:  scope.String(),
		Value:      primitive.Envelope{Value: primitive.OrNull(val)},
	}, nil
}

func evaluateRemote(ctx context.Context, id string, ts timescope.TimeScope) (controlapi.EvaluateResponse, error) {
	conn, err := grpc.NewClient(evalFlags.remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return controlapi.EvaluateResponse{}, fmt.Errorf("failed to dial data plane: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, evalFlags.timeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{
		"variable_id":     id,
		"time_scope":      timescope.Serialize(ts),
		"force_recompute": evalFlags.force,
	})
	if err != nil {
		return controlapi.EvaluateResponse{}, err
	}

	out, err := dataapi.NewClient(conn).Evaluate(ctx, req)
	if err != nil {
		return controlapi.EvaluateResponse{}, fmt.Errorf("failed to evaluate %s: %w", id, err)
	}
	val, err := dataapi.DecodeValue(out)
	if err != nil {
		return controlapi.EvaluateResponse{}, err
	}

	return controlapi.EvaluateResponse{
		VariableID: id,
		TimeScope:  out.GetFields()["time_scope"].GetStringValue(),
		Value:      primitive.Envelope{Value: val},
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
