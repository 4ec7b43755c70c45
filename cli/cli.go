// Package cli implements the smcmon command: it runs monitoring queries
// against a management server and prints or exports the results.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ridge/parallel"
	"github.com/ridge/smcmon/export"
	"github.com/ridge/smcmon/formatter"
	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/run"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/thttp"
	"github.com/ridge/smcmon/tlog"
	"github.com/ridge/smcmon/tnet"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// Commands
const (
	CommandLogs        = "logs"
	CommandConnections = "connections"
	CommandBlacklist   = "blacklist"
	CommandRoutes      = "routes"
	CommandUsers       = "users"
	CommandVPNs        = "vpns"
	CommandSSLVPN      = "sslvpn"
	CommandAlerts      = "alerts"
	CommandFields      = "fields"
	CommandNotify      = "notify"
)

var commands = []string{
	CommandLogs, CommandConnections, CommandBlacklist, CommandRoutes, CommandUsers,
	CommandVPNs, CommandSSLVPN, CommandAlerts, CommandFields, CommandNotify,
}

// Output formats
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatRaw   = "raw"
)

// Config describes a command invocation
type Config struct {
	Command string
	Args    []string

	SessionFile string
	Format      string
	Target      string
	Timezone    string
	MaxRecv     int
	Live        bool
	FetchSize   int
	Last        time.Duration
	Src         []string
	Dst         []string
	IdleTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	MetricsAddr  string
}

type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

// ExitCode implements run.WithExitCode
func (usageError) ExitCode() int {
	return 2
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !slices.Contains(commands, c.Command) {
		return usageError{fmt.Errorf("unknown command %q, expected one of %s", c.Command, strings.Join(commands, ", "))}
	}
	switch c.Format {
	case FormatTable, FormatCSV, FormatRaw:
	default:
		return usageError{fmt.Errorf("--format must be one of table, csv, raw: %q", c.Format)}
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return usageError{errors.New("--kafka-topic is required with --kafka-brokers")}
	}
	if c.Command == CommandFields {
		for _, arg := range c.Args {
			if _, err := strconv.Atoi(arg); err != nil {
				return usageError{fmt.Errorf("field ids must be numbers: %q", arg)}
			}
		}
	}
	return nil
}

// Main handles the command line and runs the command
func Main(args []string) {
	var cfg Config
	pflag.StringVar(&cfg.SessionFile, "session", "smcmon-session.yaml", "Session file (YAML: url, api_version, session_id, verify_ssl, ca_file)")
	pflag.StringVar(&cfg.Format, "format", FormatTable, "Output format (table|csv|raw)")
	pflag.StringVar(&cfg.Target, "target", "", "Engine or cluster to query")
	pflag.StringVar(&cfg.Timezone, "timezone", "", "Timezone of the shown timestamps")
	pflag.IntVar(&cfg.MaxRecv, "max-recv", 1, "Number of batches to read from session monitors")
	pflag.BoolVar(&cfg.Live, "live", false, "Follow logs in real time")
	pflag.IntVar(&cfg.FetchSize, "fetch-size", 0, "Number of stored log records to read (default 200)")
	pflag.DurationVar(&cfg.Last, "last", 0, "Read logs of the last period, e.g. 15m")
	pflag.StringSliceVar(&cfg.Src, "src", nil, "Source addresses to filter logs on")
	pflag.StringSliceVar(&cfg.Dst, "dst", nil, "Destination addresses to filter logs on")
	pflag.DurationVar(&cfg.IdleTimeout, "idle-timeout", 0, "Give up when no frame arrives for this long (0: wait forever)")
	pflag.StringSliceVar(&cfg.KafkaBrokers, "kafka-brokers", nil, "Kafka brokers to export records to")
	pflag.StringVar(&cfg.KafkaTopic, "kafka-topic", "", "Kafka topic to export records to")
	pflag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] %s [args]\n", args[0], strings.Join(commands, "|"))
		pflag.PrintDefaults()
	}
	_ = pflag.CommandLine.Parse(args[1:])

	if pflag.NArg() > 0 {
		cfg.Command = pflag.Arg(0)
		cfg.Args = pflag.Args()[1:]
	}

	run.Tool(func(ctx context.Context) error {
		if err := cfg.Validate(); err != nil {
			pflag.Usage()
			return err
		}
		sess, err := session.Load(cfg.SessionFile)
		if err != nil {
			return err
		}
		return Run(ctx, cfg, sess, os.Stdout)
	})
}

// Run runs the command, printing results to out. With a metrics address the
// protocol metrics are served while the command runs.
func Run(ctx context.Context, cfg Config, sess *session.Session, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		if cfg.MetricsAddr != "" {
			server, err := metricsServer(cfg.MetricsAddr)
			if err != nil {
				return err
			}
			spawn("metrics", parallel.Fail, server.Run)
		}

		var sink export.Sink
		if len(cfg.KafkaBrokers) > 0 {
			sink = export.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		}

		spawn("command", parallel.Exit, func(ctx context.Context) error {
			ctx = tlog.With(ctx, zap.String("command", cfg.Command))
			c := newCommand(cfg, sess, out, sink)
			defer c.close(ctx)
			return c.run(ctx)
		})
		return nil
	})
}

func metricsServer(addr string) (*thttp.Server, error) {
	registry := prometheus.NewRegistry()
	if err := protocol.RegisterMetrics(registry); err != nil {
		return nil, err
	}
	listener, err := tnet.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return thttp.NewServer(listener, thttp.Wrap(router, thttp.StandardMiddleware)), nil
}

func socketOptions(base protocol.Options, idle time.Duration) protocol.Options {
	base.IdleTimeout = idle
	return base
}

func newCatalog(sess *session.Session, opts protocol.Options) *formatter.Catalog {
	return formatter.NewCatalog(formatter.SessionResolver(sess, opts))
}
