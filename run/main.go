// Package run provides the process entry point of the smcmon command: logger
// setup from the command line, signal handling and exit codes.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ridge/must/v2"
	"github.com/ridge/parallel"
	"github.com/ridge/smcmon/tlog"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var fs = newLogFlags()

func newLogFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.String("log-format", "", "Log format (json|text)")
	fs.String("log-color", "", "Colored logs (yes|no|auto)")
	fs.BoolP("verbose", "v", false, "Enable verbose (debug level) messages")
	// Usage is printed by the main command line parser
	fs.Usage = func() {}
	return fs
}

func init() {
	pflag.CommandLine.AddFlagSet(fs)
}

// Tool runs the top-level task of the program, watching for signals.
//
// The context passed to the task carries the logger configured by the
// --log-format, --log-color and --verbose flags. An interruption or
// termination signal closes it; a task that then returns the context error
// counts as a clean exit, so that a live stream stopped with Ctrl-C exits
// with code 0.
//
// Tool does not return. It exits with code 0 if the task returns nil, with
// the code of an error implementing WithExitCode, and with 1 otherwise.
func Tool(task func(ctx context.Context) error) {
	// os.Exit doesn't run deferred functions, so it is called in the first
	// defer which runs last
	var err error
	defer func() {
		var wec WithExitCode
		if errors.As(err, &wec) {
			os.Exit(wec.ExitCode())
		}
		if err != nil {
			os.Exit(1)
		}
	}()

	config, err := logConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		err = usageError{err}
		return
	}
	ctx := tlog.WithLogger(context.Background(), tlog.New(config))

	err = parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("main", parallel.Exit, func(ctx context.Context) error {
			err := task(ctx)
			if err != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		})
		spawn("signals", parallel.Exit, handleSignals)
		return nil
	})
	if err != nil {
		tlog.Get(ctx).Error("Error", zap.Error(err))
	}
}

// WithExitCode is an optional interface that can be implemented by an error.
//
// When a (possibly wrapped) error implementing WithExitCode reaches the top
// level, the value returned by the ExitCode method becomes the exit code of the
// process. The default exit code for other errors is 1.
type WithExitCode interface {
	ExitCode() int
}

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }
func (usageError) ExitCode() int   { return 2 }

// logConfig reads the logging flags from the command line, ignoring the
// flags of the command itself
func logConfig(args []string) (tlog.Config, error) {
	if err := fs.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return tlog.Config{}, err
	}

	config := tlog.Config{
		Format:  tlog.FormatText,
		Color:   tlog.ColorAuto,
		Verbose: must.OK1(fs.GetBool("verbose")),
	}
	if fs.Lookup("log-format").Changed {
		config.Format = tlog.Format(must.OK1(fs.GetString("log-format")))
		if config.Format != tlog.FormatJSON && config.Format != tlog.FormatText {
			return tlog.Config{}, fmt.Errorf("invalid --log-format value %q", config.Format)
		}
	}
	switch colorArg := must.OK1(fs.GetString("log-color")); colorArg {
	case "", "auto":
	case "yes":
		config.Color = tlog.ColorYes
	case "no":
		config.Color = tlog.ColorNo
	default:
		return tlog.Config{}, fmt.Errorf("invalid --log-color value %q", colorArg)
	}
	return config, nil
}
