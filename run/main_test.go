package run

import (
	"errors"
	"testing"

	"github.com/ridge/smcmon/tlog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func withFlags(t *testing.T) {
	saved := fs
	fs = newLogFlags()
	t.Cleanup(func() { fs = saved })
}

func TestLogConfigDefaults(t *testing.T) {
	withFlags(t)
	config, err := logConfig([]string{"--format", "csv", "logs"})
	require.NoError(t, err)
	require.Equal(t, tlog.Config{Format: tlog.FormatText, Color: tlog.ColorAuto}, config)
}

func TestLogConfigFlags(t *testing.T) {
	withFlags(t)
	config, err := logConfig([]string{"logs", "--log-format=json", "--log-color", "no", "-v"})
	require.NoError(t, err)
	require.Equal(t, tlog.Config{Format: tlog.FormatJSON, Color: tlog.ColorNo, Verbose: true}, config)
}

func TestLogConfigInvalid(t *testing.T) {
	withFlags(t)
	_, err := logConfig([]string{"--log-color", "sometimes"})
	require.Error(t, err)

	withFlags(t)
	_, err = logConfig([]string{"--log-format", "xml"})
	require.Error(t, err)
	var wec WithExitCode
	require.False(t, errors.As(err, &wec))
	require.True(t, errors.As(usageError{err}, &wec))
	require.Equal(t, 2, wec.ExitCode())
}

func TestLogFlagsRegistered(t *testing.T) {
	for _, name := range []string{"log-format", "log-color", "verbose"} {
		require.NotNil(t, pflag.CommandLine.Lookup(name), name)
	}
}
