package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/compiler"
	"github.com/deepnoodle-ai/lift/internal/listing"
	"github.com/deepnoodle-ai/lift/version"
)

const defaultConfigName = "lift"

// app holds the state shared by the commands of one invocation.
type app struct {
	v      *viper.Viper
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "lift",
		Short:         "Translate guest bytecode into host routines",
		Version:       release,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}
	root.SetVersionTemplate("lift {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ./lift.yaml)")
	flags.String("guest-version", "", "override the guest version of every function")
	flags.Int("workers", 0, "parallel translation workers (default GOMAXPROCS)")
	flags.String("log-level", "warn", "log level: debug|info|warn|error")
	flags.Bool("no-color", false, "disable colored output")
	flags.StringP("output", "o", "", "write output to a file instead of stdout")

	root.AddCommand(
		newTranslateCmd(a),
		newDisCmd(a),
		newRunCmd(a),
		newVersionCmd(a),
	)
	return root
}

// configure merges flags, LIFT_* environment variables and the config file,
// then sets up colors and logging.
func (a *app) configure(cmd *cobra.Command) error {
	v := a.v
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("LIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}

	if v.GetBool("no-color") {
		color.NoColor = true
	}

	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     cmd.ErrOrStderr(),
		NoColor: color.NoColor || !isTerminal(cmd.ErrOrStderr()),
	}).Level(level).With().Timestamp().Logger()
	return nil
}

// output returns where command output goes and a function that closes it.
func (a *app) output(cmd *cobra.Command) (io.Writer, func() error, error) {
	path := a.v.GetString("output")
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (a *app) guestVersion() (version.Version, error) {
	s := a.v.GetString("guest-version")
	if s == "" {
		return version.Version{}, nil
	}
	return version.Parse(s)
}

func (a *app) translateOptions() []compiler.Option {
	opts := []compiler.Option{compiler.WithLogger(a.logger)}
	if n := a.v.GetInt("workers"); n > 0 {
		opts = append(opts, compiler.WithWorkers(n))
	}
	return opts
}

// load reads the functions of every listing in paths.
func (a *app) load(paths []string) ([]*bytecode.Function, error) {
	override, err := a.guestVersion()
	if err != nil {
		return nil, err
	}
	var fns []*bytecode.Function
	for _, path := range paths {
		doc, err := listing.Load(path)
		if err != nil {
			return nil, err
		}
		built, err := doc.Build(override)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		a.logger.Debug().Str("listing", path).Int("functions", len(built)).Msg("loaded listing")
		fns = append(fns, built...)
	}
	return fns, nil
}
