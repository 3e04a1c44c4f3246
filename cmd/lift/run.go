package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/lift/compiler"
	"github.com/deepnoodle-ai/lift/host"
	"github.com/deepnoodle-ai/lift/internal/artifact"
	"github.com/deepnoodle-ai/lift/vm"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <listing|artifact.cbor> [args...]",
		Short: "Translate a listing and execute one of its functions",
		Long: `Execute a function on the reference runtime.

The input is either a listing, which is translated first, or a CBOR artifact
written by "lift translate --format cbor". Every routine of the input is
available to the others as a global under its own name. Arguments are read
as YAML values, so 3 is an integer and "[1, 2]" a tuple.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], args[1:])
		},
	}
	cmd.Flags().String("func", "", "function to run (default the first)")
	cmd.Flags().Int("max-steps", 0, "abort after this many host operations")
	cmd.Flags().Bool("trace", false, "log every executed guest instruction")
	return cmd
}

func (a *app) run(cmd *cobra.Command, path string, rawArgs []string) error {
	routines, err := a.routines(cmd, path)
	if err != nil {
		return err
	}
	if len(routines) == 0 {
		return fmt.Errorf("%s: no functions", path)
	}
	target := routines[0]
	globals := make(map[string]any, len(routines))
	name := a.v.GetString("func")
	for _, r := range routines {
		globals[r.Name] = r
		if r.Name == name {
			target = r
		}
	}
	if name != "" && target.Name != name {
		return fmt.Errorf("function %q not found", name)
	}

	args := make([]any, len(rawArgs))
	for i, s := range rawArgs {
		if args[i], err = parseArg(s); err != nil {
			return err
		}
	}

	opts := []vm.Option{vm.WithGlobals(globals)}
	if n := a.v.GetInt("max-steps"); n > 0 {
		opts = append(opts, vm.WithMaxSteps(n))
	}
	if a.v.GetBool("trace") {
		opts = append(opts, vm.WithObserver(&tracer{log: a.logger.Level(zerolog.DebugLevel)}))
	}
	result, err := vm.New(opts...).Run(cmd.Context(), target, args...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), vm.Repr(result))
	return err
}

// routines loads the host routines in path, translating listings.
func (a *app) routines(cmd *cobra.Command, path string) ([]*host.Routine, error) {
	if filepath.Ext(path) == ".cbor" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := artifact.UnmarshalCBOR(data)
		if err != nil {
			return nil, err
		}
		routines := make([]*host.Routine, 0, len(doc.Routines))
		for _, r := range doc.Routines {
			routine, err := r.ToRoutine()
			if err != nil {
				return nil, err
			}
			routines = append(routines, routine)
		}
		return routines, nil
	}
	fns, err := a.load([]string{path})
	if err != nil {
		return nil, err
	}
	results, err := compiler.TranslateAll(cmd.Context(), fns, a.translateOptions()...)
	if err != nil {
		return nil, err
	}
	routines := make([]*host.Routine, len(results))
	for i, t := range results {
		routines[i] = t.Routine
	}
	return routines, nil
}

// tracer logs execution each time control reaches a new guest instruction.
type tracer struct {
	vm.NoOpObserver
	log zerolog.Logger
}

func (t *tracer) Config() vm.ObserverConfig {
	return vm.NewObserverConfig(vm.StepOnOrigin)
}

func (t *tracer) OnStep(event vm.StepEvent) bool {
	t.log.Debug().
		Int("offset", event.Origin).
		Int("ip", event.IP).
		Int("depth", event.StackDepth).
		Int("frame", event.FrameDepth).
		Stringer("op", event.Operation).
		Msg("step")
	return true
}

func (t *tracer) OnCall(event vm.CallEvent) bool {
	t.log.Debug().Str("function", event.FunctionName).Int("args", event.ArgCount).Msg("call")
	return true
}
