package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/lift/compiler"
	"github.com/deepnoodle-ai/lift/dis"
	"github.com/deepnoodle-ai/lift/internal/artifact"
)

var outputFormatsCompletion = []string{"text", "json", "cbor"}

func newTranslateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <listing>...",
		Short: "Translate every function of the given listings",
		Long: `Translate every function of the given listings into host routines.

Functions are translated in parallel. A function that fails to translate is
reported and does not prevent the others from being written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.translate(cmd, args)
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format: text|json|cbor")
	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func (a *app) translate(cmd *cobra.Command, paths []string) error {
	fns, err := a.load(paths)
	if err != nil {
		return err
	}
	results, translateErr := compiler.TranslateAll(cmd.Context(), fns, a.translateOptions()...)

	w, closeOutput, err := a.output(cmd)
	if err != nil {
		return err
	}
	switch format := a.v.GetString("format"); format {
	case "text":
		err = writeRoutines(w, results)
	case "json", "cbor":
		err = artifact.Write(w, artifact.New(results), format, colorEnabled(w))
	default:
		err = fmt.Errorf("unknown output format: %s", format)
	}
	if closeErr := closeOutput(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return translateErr
}

func writeRoutines(w io.Writer, results []*compiler.Translation) error {
	first := true
	for _, t := range results {
		if t == nil {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false
		fn := t.Function
		fmt.Fprintf(w, "%s (%s) locals=%d max_depth=%d\n",
			fn.Name(), fn.Version(), t.Routine.LocalCount, t.Routine.MaxDepth)
		if err := dis.PrintRoutine(t.Routine, w); err != nil {
			return err
		}
		for _, r := range t.Regions {
			fmt.Fprintf(w, "handler %s\n", r.String())
		}
	}
	return nil
}
