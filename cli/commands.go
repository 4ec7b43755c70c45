package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/ridge/smcmon/export"
	"github.com/ridge/smcmon/filter"
	"github.com/ridge/smcmon/format"
	"github.com/ridge/smcmon/formatter"
	"github.com/ridge/smcmon/logfield"
	"github.com/ridge/smcmon/monitors"
	"github.com/ridge/smcmon/notify"
	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/retry"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/tlog"
	"github.com/ridge/smcmon/wire"
	"go.uber.org/zap"
)

var followRetry retry.Config = retry.ExpConfig{
	Min:   time.Second,
	Max:   time.Minute,
	Scale: 2.0,
}

var errStreamEnded = errors.New("live stream ended by server")

// outputError marks failures to print or export records. They are never
// retried.
type outputError struct {
	err error
}

func (e outputError) Error() string { return e.err.Error() }
func (e outputError) Unwrap() error { return e.err }

type renderFn func(records []wire.Record) error

type command struct {
	cfg   Config
	sess  *session.Session
	out   io.Writer
	sink  export.Sink
	clock query.Clock
}

func newCommand(cfg Config, sess *session.Session, out io.Writer, sink export.Sink) *command {
	return &command{cfg: cfg, sess: sess, out: out, sink: sink, clock: query.SystemClock}
}

func (c *command) close(ctx context.Context) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Close(); err != nil {
		tlog.Get(ctx).Warn("Failed to close export sink", zap.Error(err))
	}
}

func (c *command) run(ctx context.Context) error {
	switch c.cfg.Command {
	case CommandLogs:
		return c.logs(ctx)
	case CommandConnections:
		return c.monitor(ctx, monitors.NewConnectionQuery(c.cfg.Target, c.monitorOptions()...).Query, monitors.Connections)
	case CommandRoutes:
		return c.monitor(ctx, monitors.NewRoutingQuery(c.cfg.Target, c.monitorOptions()...).Query, monitors.Routing)
	case CommandUsers:
		return c.monitor(ctx, monitors.NewUserQuery(c.cfg.Target, c.monitorOptions()...).Query, monitors.Users)
	case CommandVPNs:
		return c.monitor(ctx, monitors.NewVPNSAQuery(c.cfg.Target, c.monitorOptions()...).Query, monitors.VPNSA)
	case CommandSSLVPN:
		return c.monitor(ctx, monitors.NewSSLVPNQuery(c.cfg.Target, c.monitorOptions()...).Query, monitors.SSLVPN)
	case CommandAlerts:
		return c.monitor(ctx, monitors.NewActiveAlertQuery(c.cfg.Target, c.monitorOptions()...).Query, monitors.ActiveAlerts)
	case CommandBlacklist:
		return c.blacklist(ctx)
	case CommandFields:
		return c.fields(ctx)
	case CommandNotify:
		return c.notify(ctx)
	default:
		panic("unknown command " + c.cfg.Command)
	}
}

func (c *command) textFormat() []query.Option {
	if c.cfg.Timezone == "" {
		return nil
	}
	return []query.Option{query.Format(format.NewText(format.FieldFormatPretty).Timezone(c.cfg.Timezone))}
}

func (c *command) monitorOptions() []query.Option {
	return append(c.textFormat(), query.Socket(socketOptions(protocol.DefaultOptions, c.cfg.IdleTimeout)))
}

func (c *command) monitor(ctx context.Context, q *query.Query, source string) error {
	render, err := c.queryRenderer(ctx, q)
	if err != nil {
		return err
	}
	return q.FetchRaw(ctx, c.sess, c.cfg.MaxRecv, c.emit(ctx, render, source, ""))
}

func (c *command) logs(ctx context.Context) error {
	opts := append(c.textFormat(), query.Socket(socketOptions(protocol.LogOptions, c.cfg.IdleTimeout)))
	q := monitors.NewLogQuery(c.cfg.FetchSize, opts...)
	if c.cfg.Last > 0 {
		q.TimeRange(c.clock.Last(c.cfg.Last))
	}
	if err := installAddressFilter(q.Query, c.cfg.Src, c.cfg.Dst); err != nil {
		return err
	}

	render, err := c.queryRenderer(ctx, q.Query)
	if err != nil {
		return err
	}
	fn := c.emit(ctx, render, "logs", "")
	if !c.cfg.Live {
		return monitors.FetchLogBatch(ctx, q, c.sess, formatter.RawDict{}, fn)
	}
	return follow(ctx, func() error {
		return monitors.FetchLogLive(ctx, q, c.sess, formatter.RawDict{}, fn)
	})
}

// installAddressFilter limits logs to the source and destination addresses.
// Both lists set means both must match.
func installAddressFilter(q *query.Query, src, dst []string) error {
	var parts []filter.Filter
	if len(src) > 0 {
		parts = append(parts, filter.NewIn(filter.Fields(logfield.Src), filter.IPs(src...)))
	}
	if len(dst) > 0 {
		parts = append(parts, filter.NewIn(filter.Fields(logfield.Dst), filter.IPs(dst...)))
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return q.UpdateFilter(parts[0])
	default:
		return q.UpdateFilter(filter.NewAnd(parts...))
	}
}

// follow keeps a live stream running across connection failures. Failures
// reported by the server and output failures end it.
func follow(ctx context.Context, fetch func() error) error {
	return retry.Do(ctx, followRetry, func() error {
		err := fetch()
		var output outputError
		switch {
		case err == nil:
			tlog.Get(ctx).Info("Live stream ended, reconnecting")
			return retry.Retriable(errStreamEnded)
		case errors.Is(err, protocol.ErrFetchAborted), errors.Is(err, protocol.ErrSessionNotFound), errors.As(err, &output):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			tlog.Get(ctx).Warn("Live stream failed, reconnecting", zap.Error(err))
			return retry.Retriable(err)
		}
	})
}

var blacklistHeaders = []string{"ID", "Timestamp", "Engine", "Source", "Destination", "Protocol", "Source ports", "Destination ports", "Duration"}

func (c *command) blacklist(ctx context.Context) error {
	m := monitors.NewBlacklistQuery(c.cfg.Target, c.cfg.Timezone, query.Socket(socketOptions(protocol.DefaultOptions, c.cfg.IdleTimeout)))

	var rows, entries []wire.Record
	err := m.FetchAsElement(ctx, c.sess, c.cfg.MaxRecv, func(b monitors.BlacklistEntry) error {
		entries = append(entries, wire.Record(b))
		rows = append(rows, wire.Record{
			"ID":                b.ID(),
			"Timestamp":         b.Timestamp(),
			"Engine":            b.Engine(),
			"Source":            b.Source(),
			"Destination":       b.Destination(),
			"Protocol":          b.Protocol(),
			"Source ports":      b.SourcePorts(),
			"Destination ports": b.DestPorts(),
			"Duration":          strconv.Itoa(b.Duration()),
		})
		return nil
	})
	if err != nil || len(entries) == 0 {
		return err
	}
	if c.cfg.Format == FormatRaw {
		return c.emit(ctx, c.fixedRenderer(nil), monitors.Blacklist, "Blacklist Entry ID")(entries)
	}
	if err := c.fixedRenderer(blacklistHeaders)(rows); err != nil {
		return outputError{err}
	}
	return c.export(ctx, monitors.Blacklist, "Blacklist Entry ID", entries)
}

var fieldHeaders = []string{"ID", "Name", "Pretty", "Type"}

func (c *command) fields(ctx context.Context) error {
	ids := monitors.LogFieldIDs
	if len(c.cfg.Args) > 0 {
		ids = make([]int, 0, len(c.cfg.Args))
		for _, arg := range c.cfg.Args {
			id, err := strconv.Atoi(arg)
			if err != nil {
				return usageError{err}
			}
			ids = append(ids, id)
		}
	}

	fields, err := newCatalog(c.sess, socketOptions(protocol.LogOptions, c.cfg.IdleTimeout)).Resolve(ctx, ids...)
	if err != nil {
		return err
	}
	rows := make([]wire.Record, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, wire.Record{"ID": strconv.Itoa(f.ID), "Name": f.Name, "Pretty": f.Pretty, "Type": f.Type})
	}
	if len(rows) == 0 {
		return nil
	}
	return c.emit(ctx, c.fixedRenderer(fieldHeaders), "fields", "ID")(rows)
}

var eventHeaders = []string{"subscription_id", "action", "element"}

func (c *command) notify(ctx context.Context) error {
	n := notify.New(c.cfg.Args...).WithOptions(socketOptions(protocol.DefaultOptions, c.cfg.IdleTimeout))
	fn := c.emit(ctx, c.fixedRenderer(eventHeaders), "notifications", "element")
	return n.Notify(ctx, c.sess, func(ev notify.Event) error {
		return fn([]wire.Record{{
			"subscription_id": ev.SubscriptionID,
			"action":          ev.Action,
			"element":         ev.ElementHref(c.sess),
		}})
	})
}

// emit renders a batch and exports it
func (c *command) emit(ctx context.Context, render renderFn, source, keyField string) func(records []wire.Record) error {
	return func(records []wire.Record) error {
		if err := render(records); err != nil {
			return outputError{err}
		}
		return c.export(ctx, source, keyField, records)
	}
}

func (c *command) export(ctx context.Context, source, keyField string, records []wire.Record) error {
	if c.sink == nil {
		return nil
	}
	messages, err := export.Records(source, keyField, records, time.Now())
	if err != nil {
		return outputError{err}
	}
	if err := c.sink.Write(ctx, messages); err != nil {
		return outputError{err}
	}
	return nil
}

// queryRenderer prints records in the columns of the query
func (c *command) queryRenderer(ctx context.Context, q *query.Query) (renderFn, error) {
	if c.cfg.Format == FormatRaw {
		return c.rawRenderer(), nil
	}
	headers, err := formatter.Headers(ctx, q, newCatalog(c.sess, q.SocketOptions()))
	if err != nil {
		return nil, err
	}
	return c.fixedRenderer(headers), nil
}

func (c *command) fixedRenderer(headers []string) renderFn {
	switch c.cfg.Format {
	case FormatCSV:
		return textRenderer(c.out, formatter.NewCSV(headers))
	case FormatTable:
		return textRenderer(c.out, formatter.NewTable(headers))
	default:
		return c.rawRenderer()
	}
}

func textRenderer(out io.Writer, f query.Formatter[string]) renderFn {
	return func(records []wire.Record) error {
		s, err := f.Format(records)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, s)
		return err
	}
}

func (c *command) rawRenderer() renderFn {
	enc := json.NewEncoder(c.out)
	return func(records []wire.Record) error {
		for _, record := range records {
			if err := enc.Encode(record); err != nil {
				return err
			}
		}
		return nil
	}
}
