package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vk/opgraph/internal/control"
	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/executor"
	"github.com/vk/opgraph/internal/reconcile"
	"github.com/vk/opgraph/internal/snapshot"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Run loads the configured snapshot (when given), reconciles it into the
// population, evaluates the requested sinks and writes their outputs as
// JSON to outW. With a control port configured it then serves the control
// endpoint until ctx is cancelled.
func (a *App) Run(parent context.Context, outW io.Writer) error {
	ctx := a.Context(parent)
	logger := ctxlog.FromContext(ctx)

	if a.config.GraphPath != "" {
		if err := a.loadGraph(ctx); err != nil {
			return err
		}
		if err := a.evaluate(ctx, outW); err != nil {
			return err
		}
	}

	if a.config.ControlPort > 0 {
		a.controlServer = control.NewServer(a.pop, a.reg)
		a.controlServer.Start(ctx, a.config.ControlPort)
		<-ctx.Done()
		if err := a.controlServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Control server shutdown failed.", "error", err)
		}
	}
	return nil
}

// loadGraph reads and reconciles the snapshot file.
func (a *App) loadGraph(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Loading graph snapshot.", "path", a.config.GraphPath)

	f, err := os.Open(a.config.GraphPath)
	if err != nil {
		return fmt.Errorf("opening graph snapshot: %w", err)
	}
	defer f.Close()

	snap, err := snapshot.Decode(f)
	if err != nil {
		return err
	}

	ops, err := reconcile.TransformGraph(ctx, a.pop, a.reg, snap)
	if err != nil {
		return fmt.Errorf("reconciling graph: %w", err)
	}
	logger.Info("Graph reconciled.", "operators", len(ops))

	for _, o := range ops {
		for edgeID, cerr := range o.ConnectionErrors() {
			logger.Warn("Connection failed validation.", "op", o.ID, "edge", edgeID, "error", cerr)
		}
	}
	return nil
}

// evaluate pulls the configured sinks and prints their outputs.
func (a *App) evaluate(ctx context.Context, outW io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	results, err := executor.Evaluate(ctx, a.pop, a.config.EvalTargets)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := make(map[string]map[string]json.RawMessage, len(results))
	for _, id := range ids {
		r := results[id]
		if r.Err != nil {
			logger.Error("Operator failed.", "op", id, "error", r.Err)
			continue
		}
		outputs := make(map[string]json.RawMessage, len(r.Outputs))
		for name, v := range r.Outputs {
			raw, merr := ctyjson.Marshal(v, v.Type())
			if merr != nil {
				logger.Warn("Output is not serializable.", "op", id, "output", name, "error", merr)
				continue
			}
			outputs[name] = raw
		}
		report[id] = outputs
	}

	enc := json.NewEncoder(outW)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
