package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/dis"
)

func newDisCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis <listing>",
		Short: "Disassemble the guest functions of a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.disassemble(cmd, args[0])
		},
	}
	cmd.Flags().String("func", "", "function to disassemble")
	return cmd
}

func (a *app) disassemble(cmd *cobra.Command, path string) error {
	fns, err := a.load([]string{path})
	if err != nil {
		return err
	}
	if name := a.v.GetString("func"); name != "" {
		fn, err := findFunction(fns, name)
		if err != nil {
			return err
		}
		fns = []*bytecode.Function{fn}
	}

	w, closeOutput, err := a.output(cmd)
	if err != nil {
		return err
	}
	defer closeOutput()
	for i, fn := range fns {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%s)\n", fn.Name(), fn.Version())
		instructions, err := dis.Disassemble(fn)
		if err != nil {
			return fmt.Errorf("%s: %w", fn.Name(), err)
		}
		if err := dis.Print(instructions, w); err != nil {
			return err
		}
		if err := dis.PrintExceptionTable(fn, w); err != nil {
			return err
		}
	}
	return nil
}

func findFunction(fns []*bytecode.Function, name string) (*bytecode.Function, error) {
	for _, fn := range fns {
		if fn.Name() == name {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("function %q not found", name)
}
