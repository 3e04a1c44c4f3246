package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

var red = color.New(color.FgRed).SprintFunc()

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

// isTerminal reports whether w is a terminal. Colors are only written to
// terminals.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorEnabled(w io.Writer) bool {
	return !color.NoColor && isTerminal(w)
}

func writeJSON(w io.Writer, v any) error {
	var data []byte
	var err error
	if colorEnabled(w) {
		data, err = prettyjson.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// parseArg reads a command line argument as a YAML scalar or flow sequence,
// so "3" is an integer, "true" a bool and "[1, 2]" a tuple.
func parseArg(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid argument %q: %w", s, err)
	}
	return argValue(v)
}

func argValue(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, float64:
		return v, nil
	case int:
		return int64(v), nil
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			value, err := argValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = value
		}
		return items, nil
	}
	return nil, fmt.Errorf("unsupported argument of type %T", v)
}
